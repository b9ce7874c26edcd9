// Package catalog defines the catalog, schema and table interfaces the
// Flight handlers serve, plus a static catalog implementation.
//
// All interfaces are goroutine-safe and support context-based cancellation.
package catalog

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an object doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrReadOnly is returned by tables that reject data modification.
	ErrReadOnly = errors.New("table is read-only")
)

// Catalog represents the top-level metadata container.
// All methods MUST be goroutine-safe.
type Catalog interface {
	// Schemas returns all schemas visible in this catalog, ordered by name.
	// Context may contain auth info for permission-based filtering.
	// Returns empty slice (not nil) if no schemas available.
	Schemas(ctx context.Context) ([]Schema, error)

	// Schema returns a specific schema by name.
	// Returns (nil, nil) if schema doesn't exist (not an error).
	// Returns (nil, err) if lookup fails for other reasons.
	Schema(ctx context.Context, name string) (Schema, error)
}

// Schema represents a database schema containing tables.
// Implementations MUST be goroutine-safe.
type Schema interface {
	// Name returns the schema name (e.g., "main").
	Name() string

	// Comment returns optional schema documentation.
	Comment() string

	// Tables returns all tables in this schema, ordered by name.
	// Returns empty slice (not nil) if no tables available.
	Tables(ctx context.Context) ([]Table, error)

	// Table returns a specific table by name.
	// Returns (nil, nil) if table doesn't exist (not an error).
	Table(ctx context.Context, name string) (Table, error)
}
