package health

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteChecker checks SQLite database connectivity.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a new SQLite health checker.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

// Name returns the checker name.
func (c *SQLiteChecker) Name() string {
	return "sqlite"
}

// Check verifies the SQLite database is accessible.
func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// DispatcherChecker reports whether any notification channel is registered.
type DispatcherChecker struct {
	channels func() []string
}

// NewDispatcherChecker creates a checker backed by the dispatcher's
// channel list.
func NewDispatcherChecker(channels func() []string) *DispatcherChecker {
	return &DispatcherChecker{channels: channels}
}

// Name returns the checker name.
func (c *DispatcherChecker) Name() string {
	return "notifiers"
}

// Check verifies at least one notification channel is registered.
func (c *DispatcherChecker) Check(ctx context.Context) error {
	if c.channels == nil || len(c.channels()) == 0 {
		return fmt.Errorf("no notification channels registered")
	}
	return nil
}
