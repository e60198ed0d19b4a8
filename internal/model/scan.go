package model

import (
	"database/sql"
	"fmt"

	"github.com/matheus3301/chatsync/internal/fields"
)

// scanSlot adapts a schema field to database/sql's Scanner so that rows can
// be scanned straight into a record without reflection.
type scanSlot[T any] struct {
	field Field[T]
	rec   *T
}

func (s *scanSlot[T]) Scan(src any) error {
	switch s.field.Kind {
	case fields.KindString:
		var v sql.NullString
		if err := v.Scan(src); err != nil {
			return fmt.Errorf("column %s: %w", s.field.Column, err)
		}
		s.field.set(s.rec, fields.String(v.String))
	case fields.KindInt64:
		var v sql.NullInt64
		if err := v.Scan(src); err != nil {
			return fmt.Errorf("column %s: %w", s.field.Column, err)
		}
		s.field.set(s.rec, fields.Int64(v.Int64))
	case fields.KindBool:
		var v sql.NullBool
		if err := v.Scan(src); err != nil {
			return fmt.Errorf("column %s: %w", s.field.Column, err)
		}
		s.field.set(s.rec, fields.Bool(v.Bool))
	case fields.KindFloat64:
		var v sql.NullFloat64
		if err := v.Scan(src); err != nil {
			return fmt.Errorf("column %s: %w", s.field.Column, err)
		}
		s.field.set(s.rec, fields.Float64(v.Float64))
	default:
		return fmt.Errorf("column %s: cannot scan %s", s.field.Column, s.field.Kind)
	}
	return nil
}

// ScanTargets returns Scan destinations for every field of r in Columns order.
// Synced schemas append never_synced and sync_required after the fields.
func (s *Schema[T]) ScanTargets(r *T) []any {
	targets := make([]any, 0, len(s.fields)+2)
	for _, f := range s.fields {
		targets = append(targets, f.scanner(r))
	}
	if s.Synced() {
		m := s.meta(r)
		targets = append(targets, &m.NeverSynced, &m.SyncRequired)
	}
	return targets
}

// Values returns the SQL arguments of r in Columns order, flags last for
// synced schemas.
func (s *Schema[T]) Values(r *T) []any {
	vals := make([]any, 0, len(s.fields)+2)
	for _, f := range s.fields {
		vals = append(vals, f.get(r).Any())
	}
	if s.Synced() {
		m := s.meta(r)
		vals = append(vals, m.NeverSynced, m.SyncRequired)
	}
	return vals
}

// AllColumns is Columns plus the flag columns for synced schemas.
func (s *Schema[T]) AllColumns() []string {
	cols := s.Columns()
	if s.Synced() {
		cols = append(cols, "never_synced", "sync_required")
	}
	return cols
}
