// Package pgtypes converts between nullable PostgreSQL values and the Go
// shapes used by the domain types.
package pgtypes

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Text maps the empty string to NULL
func Text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// String maps NULL to the empty string
func String(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// Date maps nil to NULL. Only the calendar date in UTC is kept.
func Date(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	u := t.UTC()
	return pgtype.Date{Time: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

// DatePtr maps NULL to nil
func DatePtr(d pgtype.Date) *time.Time {
	if !d.Valid || d.InfinityModifier != pgtype.Finite {
		return nil
	}
	t := time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
	return &t
}

// Timestamptz maps nil to NULL
func Timestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// TimePtr maps NULL to nil and normalizes to UTC
func TimePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid || ts.InfinityModifier != pgtype.Finite {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}
