// Package snapshot stores encoded chat sessions so a conversation can be
// handed off between processes and resumed later.
package snapshot

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get for an unknown or expired session.
	ErrNotFound = errors.New("snapshot not found")
	// ErrInvalidStoreType is returned by NewStore for an unknown driver.
	ErrInvalidStoreType = errors.New("invalid snapshot store type")
	// ErrInvalidConfig is returned when a driver is missing its backend.
	ErrInvalidConfig = errors.New("invalid snapshot store configuration")
)

// Entry is one stored session.
type Entry struct {
	ID      string `json:"id"`
	Persona string `json:"persona"`
	// Data is the encoded session snapshot.
	Data      string    `json:"data"`
	Turns     int       `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for snapshot storage operations.
type Store interface {
	// Put inserts or replaces the entry and stamps UpdatedAt.
	Put(ctx context.Context, e *Entry) error

	// Get retrieves an entry by session ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Entry, error)

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, id string) error

	// Close closes the store and releases any resources.
	Close() error
}
