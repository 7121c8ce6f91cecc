// Package idgen provides pluggable ID generation.
//
// Extraction runs and browser sessions are long-lived and interleave in
// logs; constructors accept a Generator so the ID strategy stays a
// startup-time decision.
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// New returns a single UUIDv7 string, the default ID strategy.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
// Time-sortable, so run IDs sort chronologically in log queries.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// NanoID returns a Generator producing base-36 IDs of the given length.
// Short and URL-safe; use where UUIDv7 is too verbose, like per-session
// log tags.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		b := make([]byte, length)
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range b {
			b[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(b)
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID,
// for type-scoped identifiers (e.g. "sess_", "run_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}
