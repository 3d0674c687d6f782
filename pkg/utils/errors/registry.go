package errors

import (
	"fmt"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[int]*Errno)
)

// define builds and registers the Errno for (service, category, sequence).
// Status codes come from the category. It panics on out-of-range parts, an
// unknown category, a missing English message or a duplicate code, so bad
// definitions fail at init.
func define(service, category, sequence int, messageEN, messageZH string) *Errno {
	switch {
	case service < 0 || service > 99:
		panic(fmt.Sprintf("errors: service code must be 0-99, got %d", service))
	case sequence < 0 || sequence > 999:
		panic(fmt.Sprintf("errors: sequence must be 0-999, got %d", sequence))
	case messageEN == "":
		panic("errors: english message is required")
	}
	st, ok := categoryStatus[category]
	if !ok {
		panic(fmt.Sprintf("errors: unknown category %d", category))
	}
	return Register(New(MakeCode(service, category, sequence), st.http, st.grpc, messageEN, messageZH))
}

// Register records e and panics when its code is already taken.
func Register(e *Errno) *Errno {
	registryMu.Lock()
	defer registryMu.Unlock()

	if existing, ok := registry[e.Code]; ok {
		panic(fmt.Sprintf("errno code %d already registered: %s", e.Code, existing.MessageEN))
	}
	registry[e.Code] = e
	return e
}

// Lookup returns the Errno registered under code.
func Lookup(code int) (*Errno, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[code]
	return e, ok
}

// Registered returns a snapshot of every registered code.
func Registered() map[int]*Errno {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make(map[int]*Errno, len(registry))
	for k, v := range registry {
		out[k] = v
	}
	return out
}
