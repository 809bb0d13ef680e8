package internaldefs

import "testing"

func TestNormalizeBuckets(t *testing.T) {
	short := NormalizeBuckets([]uint64{1, 2})
	if short != [8]uint64{1, 2, 0, 0, 0, 0, 0, 0} {
		t.Fatalf("unexpected padding: %v", short)
	}

	long := NormalizeBuckets([]uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if long != [8]uint64{1, 2, 3, 4, 5, 6, 7, 8} {
		t.Fatalf("unexpected truncation: %v", long)
	}

	if NormalizeBuckets(nil) != ([8]uint64{}) {
		t.Fatal("expected zero buckets for nil input")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets([8]uint64{1, 0, 2, 0, 0, 0, 0, 3})
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 6}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDefsAlignment(t *testing.T) {
	if len(HistogramBounds) != len(HistogramBoundSuffix) {
		t.Fatal("bound labels and suffixes must stay in lockstep")
	}

	seen := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if def.Name == "" || def.Help == "" {
			t.Fatalf("incomplete counter def: %+v", def)
		}
		if seen[def.Name] {
			t.Fatalf("duplicate counter name %s", def.Name)
		}
		seen[def.Name] = true
	}
}
