package persist

import (
	"context"
	"fmt"
	"strings"
)

// Store keeps named, append-only collections of policy records, e.g.
// "robot.policy" for every evaluation and "robot.best" for the best ones.
type Store interface {
	Init(ctx context.Context) error
	// Append adds records to the end of the named collection.
	Append(ctx context.Context, name string, records ...Record) error
	// Records returns the named collection in append order. A collection
	// that was never written is empty.
	Records(ctx context.Context, name string) ([]Record, error)
	Close() error
}

// NewStore builds the backend selected by kind, ignoring case: "none" drops
// records, "memory" keeps them in process, "file" writes YAML files under dir
// and "sqlite" uses a database at sqlitePath, partitioned by runID. The store
// still needs Init.
func NewStore(kind, dir, sqlitePath, runID string) (Store, error) {
	switch strings.ToLower(kind) {
	case "", "none":
		return NopStore{}, nil
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(dir), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath, runID), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Init(context.Context) error                      { return nil }
func (NopStore) Append(context.Context, string, ...Record) error { return nil }
func (NopStore) Records(context.Context, string) ([]Record, error) {
	return nil, nil
}
func (NopStore) Close() error { return nil }
