// Package internaldefs holds the stable metric name definitions shared
// by exporter implementations, so every exporter publishes identical
// names and bucket boundaries.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
