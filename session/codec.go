package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// The stored blob is a versioned JSON envelope. The version byte gates
// schema migrations; a decoder never guesses at an unknown layout.
const codecVersion = 1

var ErrCorruptRecord = errors.New("corrupt session record")

type envelope struct {
	Version int      `json:"v"`
	Session *Session `json:"s"`
}

// Encode serializes a session for storage.
func Encode(sess *Session) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}

	return json.Marshal(envelope{
		Version: codecVersion,
		Session: sess,
	})
}

// Decode deserializes a stored session blob.
func Decode(data []byte) (*Session, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if env.Version != codecVersion || env.Session == nil {
		return nil, ErrCorruptRecord
	}

	return env.Session, nil
}
