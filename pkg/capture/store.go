// Package capture persists instrument responses.
//
// An interactive session can save the answer to a query under a key
// (for example "scope/ch1/waveform") so that measurements are kept next to
// the query that produced them. Backends live in subpackages: memory, fs,
// s3 and badger.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Store Interface
// ============================================================================

// Store saves and retrieves captured responses.
//
// Keys are slash-separated paths of [A-Za-z0-9._-] segments, validated
// with ValidateKey. Putting a record under an existing key replaces it.
//
// Thread Safety:
// Implementations must be safe for concurrent use.
type Store interface {
	// Put saves rec under rec.Key.
	Put(ctx context.Context, rec Record) error

	// Get returns the record saved under key, or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases the backend. Further calls fail with ErrClosed.
	Close() error
}

// Record is one captured exchange with an instrument.
type Record struct {
	Key      string    `json:"key"`
	Host     string    `json:"host"`
	Device   string    `json:"device"`
	Query    string    `json:"query"`
	Response []byte    `json:"response"`
	Time     time.Time `json:"time"`
}

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrNotFound is returned by Get for an unknown key.
	ErrNotFound = errors.New("capture: record not found")

	// ErrClosed is returned by any call on a closed store.
	ErrClosed = errors.New("capture: store closed")
)

// InvalidKeyError reports a key rejected by ValidateKey.
type InvalidKeyError struct {
	Key    string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("capture: invalid key %q: %s", e.Key, e.Reason)
}

// ValidateKey checks that key is a relative slash-separated path usable
// as a file path, an object key and a database key alike.
func ValidateKey(key string) error {
	if key == "" {
		return &InvalidKeyError{Key: key, Reason: "empty"}
	}
	for _, segment := range strings.Split(key, "/") {
		switch segment {
		case "":
			return &InvalidKeyError{Key: key, Reason: "empty path segment"}
		case ".", "..":
			return &InvalidKeyError{Key: key, Reason: "relative path segment"}
		}
		for _, r := range segment {
			if !isKeyRune(r) {
				return &InvalidKeyError{Key: key, Reason: fmt.Sprintf("character %q not allowed", r)}
			}
		}
	}
	return nil
}

func isKeyRune(r rune) bool {
	return r >= 'a' && r <= 'z' ||
		r >= 'A' && r <= 'Z' ||
		r >= '0' && r <= '9' ||
		r == '.' || r == '_' || r == '-'
}

// ============================================================================
// Encoding
// ============================================================================

// Marshal encodes rec for byte-oriented backends.
func Marshal(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("capture: encode %q: %w", rec.Key, err)
	}
	return data, nil
}

// Unmarshal decodes a record written by Marshal.
func Unmarshal(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("capture: decode record: %w", err)
	}
	return rec, nil
}
