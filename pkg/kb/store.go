// Package kb implements the shared key-value blackboard that connects the
// bridge to the scan engine.
//
// The blackboard is partitioned into numbered indices. Index 0 is reserved
// for the VT metadata cache; every running scan exclusively owns one "main"
// index allocated through the SessionManager, and the engine claims further
// auxiliary indices on its own, one per sub-target. All values are strings
// and list-shaped: the engine's whole wire protocol is flat
// "name|||value" records appended to list keys.
//
// The Store interface is the injection point: production deployments back it
// with the engine's actual store, tests use MemoryStore. The store gives no
// transactional guarantees; higher layers get their correctness from index
// ownership, not from the store.
package kb

import "context"

// Separator joins the fields of every record the engine reads or writes.
const Separator = "|||"

// CacheIndex is the blackboard index holding the VT metadata feed.
const CacheIndex = 0

// Store is a partitioned string blackboard. Every key holds a list of
// strings; Get reads the head of the list, Push appends. A missing key is an
// expected, frequent outcome and is reported through the ok return, not an
// error.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// MaxIndex returns the number of indices the store partitions into.
	// Valid indices are 0..MaxIndex()-1.
	MaxIndex() int

	// Get returns the first value stored under key in the given index.
	Get(ctx context.Context, index int, key string) (value string, ok bool, err error)

	// Push appends values to the list stored under key.
	Push(ctx context.Context, index int, key string, values ...string) error

	// List returns a copy of all values stored under key, oldest first.
	List(ctx context.Context, index int, key string) ([]string, error)

	// Pop removes and returns the first value stored under key.
	Pop(ctx context.Context, index int, key string) (value string, ok bool, err error)

	// RemoveListValue deletes the first occurrence of value from the list
	// stored under key. Removing a value that is not present is not an error.
	RemoveListValue(ctx context.Context, index int, key, value string) error

	// Keys returns all keys in the index that start with prefix, in
	// unspecified order. An empty prefix matches every key.
	Keys(ctx context.Context, index int, prefix string) ([]string, error)

	// Flush removes every key from the index.
	Flush(ctx context.Context, index int) error
}

// Record renders a name/value pair in the engine's record format.
func Record(name, value string) string {
	return name + Separator + value
}
