// Package idgen provides pluggable ID generation. Run IDs, ledger event IDs
// and request IDs all take a Generator, so the strategy is a startup-time
// decision rather than a compile-time one.
package idgen

import (
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
// Time-sortable and globally unique.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID,
// for type-scoped identifiers (e.g. "run_", "evt_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Timestamped returns a Generator producing IDs of the form
// "20060102T150405Z_<suffix>". Run directories sort chronologically
// when named this way.
func Timestamped(gen Generator) Generator {
	return func() string {
		return time.Now().UTC().Format("20060102T150405Z") + "_" + gen()
	}
}

// Default is UUIDv7. Prefixed and Timestamped variants compose on top.
var Default Generator = UUIDv7()
