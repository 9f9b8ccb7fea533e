package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/metrics"
)

// observeQuery records query latency and errors for one repository
// operation. Use with defer; errp points at the named return.
func observeQuery(op string, start time.Time, errp *error) {
	metrics.StorageQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if errp != nil && *errp != nil && !isNoRows(*errp) {
		metrics.StorageErrors.WithLabelValues(op).Inc()
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
