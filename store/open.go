package store

import (
	"context"
	"fmt"
)

// Open returns the backend for driver ("postgres" or "sqlite")
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres", "":
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
