package model

import (
	"fmt"
	"unicode/utf8"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/syncerr"
)

// Field maps one struct field of T to a remote field name and a local column.
type Field[T any] struct {
	Name   string
	Column string
	Kind   fields.Kind
	get    func(*T) fields.Value
	set    func(*T, fields.Value)
}

// Get reads the field from r.
func (f Field[T]) Get(r *T) fields.Value { return f.get(r) }

// Set writes v into r. The caller guarantees v.Kind() == f.Kind.
func (f Field[T]) Set(r *T, v fields.Value) { f.set(r, v) }

func (f Field[T]) scanner(r *T) *scanSlot[T] {
	return &scanSlot[T]{field: f, rec: r}
}

// String maps a string field.
func String[T any, S ~string](name, column string, p func(*T) *S) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: fields.KindString,
		get: func(r *T) fields.Value { return fields.String(string(*p(r))) },
		set: func(r *T, v fields.Value) { *p(r) = S(v.AsString()) },
	}
}

// Integer maps any integer-typed field, including enums, as int64.
func Integer[T any, I ~int | ~int32 | ~int64](name, column string, p func(*T) *I) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: fields.KindInt64,
		get: func(r *T) fields.Value { return fields.Int64(int64(*p(r))) },
		set: func(r *T, v fields.Value) { *p(r) = I(v.AsInt64()) },
	}
}

// Bool maps a bool field.
func Bool[T any](name, column string, p func(*T) *bool) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: fields.KindBool,
		get: func(r *T) fields.Value { return fields.Bool(*p(r)) },
		set: func(r *T, v fields.Value) { *p(r) = v.AsBool() },
	}
}

// Float maps a float64 field.
func Float[T any](name, column string, p func(*T) *float64) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: fields.KindFloat64,
		get: func(r *T) fields.Value { return fields.Float64(*p(r)) },
		set: func(r *T, v fields.Value) { *p(r) = v.AsFloat64() },
	}
}

// Schema is the explicit field table of an entity type. It drives the local
// SQL columns, the remote encoding and the filter translation.
type Schema[T any] struct {
	Collection string
	Table      string
	meta       func(*T) *Meta
	fields     []Field[T]
	byName     map[string]int
}

// NewSynced describes a syncable entity. objectId, createdAt and updatedAt
// are added from the embedded Meta; the dirty flags are never encoded.
func NewSynced[T any](collection, table string, meta func(*T) *Meta, fs ...Field[T]) *Schema[T] {
	base := []Field[T]{
		String("objectId", "id", func(r *T) *string { return &meta(r).ID }),
		Integer("createdAt", "created_at", func(r *T) *int64 { return &meta(r).CreatedAt }),
		Integer("updatedAt", "updated_at", func(r *T) *int64 { return &meta(r).UpdatedAt }),
	}
	return newSchema(collection, table, meta, append(base, fs...))
}

// NewDerived describes a local-only entity keyed by id.
func NewDerived[T any](collection, table string, id func(*T) *string, fs ...Field[T]) *Schema[T] {
	base := []Field[T]{String("objectId", "id", id)}
	return newSchema(collection, table, nil, append(base, fs...))
}

func newSchema[T any](collection, table string, meta func(*T) *Meta, fs []Field[T]) *Schema[T] {
	s := &Schema[T]{
		Collection: collection,
		Table:      table,
		meta:       meta,
		fields:     fs,
		byName:     make(map[string]int, len(fs)),
	}
	for i, f := range fs {
		if _, dup := s.byName[f.Name]; dup {
			panic(fmt.Sprintf("schema %s: duplicate field %q", collection, f.Name))
		}
		s.byName[f.Name] = i
	}
	return s
}

// Synced reports whether records carry dirty-tracking metadata.
func (s *Schema[T]) Synced() bool { return s.meta != nil }

// Meta returns r's sync metadata. It panics for derived schemas.
func (s *Schema[T]) Meta(r *T) *Meta { return s.meta(r) }

// ID returns the primary key of r.
func (s *Schema[T]) ID(r *T) string { return s.fields[0].get(r).AsString() }

// Fields returns the field table, objectId first.
func (s *Schema[T]) Fields() []Field[T] { return s.fields }

// Field looks up a field by remote name.
func (s *Schema[T]) Field(name string) (Field[T], bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field[T]{}, false
	}
	return s.fields[i], true
}

// Encode serializes every field of r, excluding the dirty flags.
func (s *Schema[T]) Encode(r *T) fields.Map {
	m := make(fields.Map, len(s.fields))
	for _, f := range s.fields {
		m[f.Name] = f.get(r)
	}
	return m
}

// Decode builds a record from a remote document. Missing fields keep their
// zero value; unknown fields are ignored; a value whose kind differs from the
// schema is rejected with syncerr.ErrUnsupported.
func (s *Schema[T]) Decode(doc fields.Map) (*T, error) {
	r := new(T)
	for _, f := range s.fields {
		v, ok := doc[f.Name]
		if !ok {
			continue
		}
		if v.Kind() != f.Kind {
			if f.Kind == fields.KindInt64 && v.Kind() == fields.KindFloat64 && v.AsFloat64() == float64(int64(v.AsFloat64())) {
				v = fields.Int64(int64(v.AsFloat64()))
			} else {
				return nil, fmt.Errorf("%s.%s: got %s, want %s: %w", s.Collection, f.Name, v.Kind(), f.Kind, syncerr.ErrUnsupported)
			}
		}
		f.set(r, v)
	}
	if s.ID(r) == "" {
		return nil, fmt.Errorf("%s: document without objectId: %w", s.Collection, syncerr.ErrDataIntegrity)
	}
	return r, nil
}

// Columns returns the local column names in field order.
func (s *Schema[T]) Columns() []string {
	cols := make([]string, len(s.fields))
	for i, f := range s.fields {
		cols[i] = f.Column
	}
	return cols
}

// Column resolves a remote field name to its local column.
func (s *Schema[T]) Column(name string) (string, bool) {
	f, ok := s.Field(name)
	return f.Column, ok
}

// Initials returns the first rune of s, or "" for an empty string.
func Initials(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 || r == utf8.RuneError {
		return ""
	}
	return string(r)
}
