package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the generation
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrNotCacheable indicates a write for a key whose method is not GET
	ErrNotCacheable = errors.New("request method is not cache-eligible")

	// ErrEmptyName indicates an empty generation name
	ErrEmptyName = errors.New("cache name cannot be empty")
)

// Record pairs a key with the entry to store under it.
type Record struct {
	Key   Key
	Entry *Entry
}

// Storage holds named cache generations.
type Storage interface {
	// Open returns the named generation, creating it if absent.
	Open(ctx context.Context, name string) (Cache, error)

	// Has reports whether the named generation exists.
	Has(ctx context.Context, name string) (bool, error)

	// Keys lists all generation names in sorted order.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes a generation and all of its entries.
	// It reports whether the generation existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Cache is one generation of stored responses.
type Cache interface {
	Name() string

	// Match returns the entry stored under key or ErrCacheMiss.
	Match(ctx context.Context, key Key) (*Entry, error)

	// Put stores a single entry, overwriting any previous one for key.
	Put(ctx context.Context, key Key, entry *Entry) error

	// PutAll stores every record or none of them.
	PutAll(ctx context.Context, records []Record) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}

func validateRecord(key Key, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}
	if !key.Cacheable() {
		return ErrNotCacheable
	}
	return nil
}
