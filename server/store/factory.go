package store

import (
	"fmt"
	"strings"
)

const DefaultSQLitePath = "data/postsearch.db"

// NewPostStore opens a post store for vectors of dimension dim based on the DSN.
// - Empty DSN: SQLite at data/postsearch.db
// - postgres:// or postgresql://: PostgreSQL with pgvector
// - memory or memory:: in-process map
// - Anything else: SQLite at the specified path
func NewPostStore(dsn string, dim int) (PostStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}

	switch {
	case dsn == "":
		return NewSQLiteStore(DefaultSQLitePath, dim)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := NewPostgresStore(dsn, dim)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	case dsn == "memory", strings.HasPrefix(dsn, "memory:"):
		return NewMemoryStore(dim), nil
	}

	return NewSQLiteStore(dsn, dim)
}
