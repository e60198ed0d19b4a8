package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/matheus3301/chatsync/internal/fields"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/syncerr"
)

type selectOpts struct {
	order []query.Order
	limit int
}

// Opt tunes Select.
type Opt func(*selectOpts)

// OrderBy sorts the result. Ties break on id.
func OrderBy(o ...query.Order) Opt {
	return func(so *selectOpts) { so.order = append(so.order, o...) }
}

// Limit caps the number of rows.
func Limit(n int) Opt {
	return func(so *selectOpts) { so.limit = n }
}

func selectSQL[T any](s *model.Schema[T], f query.Filter, opts []Opt) (string, []any, error) {
	var so selectOpts
	for _, o := range opts {
		o(&so)
	}
	pred, args, err := where(s, f)
	if err != nil {
		return "", nil, err
	}
	order, err := orderBy(s, so.order)
	if err != nil {
		return "", nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s%s", strings.Join(s.AllColumns(), ", "), s.Table, pred, order)
	if so.limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", so.limit)
	}
	return q, args, nil
}

func scanRows[T any](s *model.Schema[T], rows *sql.Rows) ([]*T, error) {
	defer func() { _ = rows.Close() }()
	var out []*T
	for rows.Next() {
		r := new(T)
		if err := rows.Scan(s.ScanTargets(r)...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.Table, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get loads one record by id. A missing record is (nil, nil).
func Get[T any](ctx context.Context, q Querier, s *model.Schema[T], id string) (*T, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(s.AllColumns(), ", "), s.Table)
	r := new(T)
	err := q.QueryRowContext(ctx, stmt, id).Scan(s.ScanTargets(r)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", s.Table, id, err)
	}
	return r, nil
}

// Select returns the records matching f.
func Select[T any](ctx context.Context, q Querier, s *model.Schema[T], f query.Filter, opts ...Opt) ([]*T, error) {
	stmt, args, err := selectSQL(s, f, opts)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.Table, err)
	}
	return scanRows(s, rows)
}

// First returns the first record matching f, or nil.
func First[T any](ctx context.Context, q Querier, s *model.Schema[T], f query.Filter, opts ...Opt) (*T, error) {
	rs, err := Select(ctx, q, s, f, append(opts, Limit(1))...)
	if err != nil || len(rs) == 0 {
		return nil, err
	}
	return rs[0], nil
}

// Count returns how many records match f.
func Count[T any](ctx context.Context, q Querier, s *model.Schema[T], f query.Filter) (int, error) {
	pred, args, err := where(s, f)
	if err != nil {
		return 0, err
	}
	var n int
	err = q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.Table, pred), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.Table, err)
	}
	return n, nil
}

// Max returns the largest value of an integer field among records matching
// f, or 0 when none match.
func Max[T any](ctx context.Context, q Querier, s *model.Schema[T], field string, f query.Filter) (int64, error) {
	col, ok := s.Column(field)
	if !ok {
		return 0, fmt.Errorf("max %s.%s: %w", s.Collection, field, syncerr.ErrUnsupported)
	}
	pred, args, err := where(s, f)
	if err != nil {
		return 0, err
	}
	var n int64
	stmt := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s WHERE %s", col, s.Table, pred)
	if err := q.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("max %s.%s: %w", s.Table, col, err)
	}
	return n, nil
}

// Put upserts every column of r, flags included.
func Put[T any](ctx context.Context, tx *Tx, s *model.Schema[T], r *T) error {
	cols := s.AllColumns()
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, c+" = excluded."+c)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		s.Table, strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, stmt, s.Values(r)...); err != nil {
		return fmt.Errorf("put %s %s: %w", s.Table, s.ID(r), err)
	}
	tx.Touched(s.Table, s.ID(r))
	return nil
}

// Create stores a new record in its own transaction.
func Create[T any](ctx context.Context, st *Store, s *model.Schema[T], r *T) error {
	return st.Write(ctx, func(tx *Tx) error {
		return Put(ctx, tx, s, r)
	})
}

// Update applies fn to the stored record id in its own transaction. See
// UpdateTx.
func Update[T any](ctx context.Context, st *Store, s *model.Schema[T], id string, fn func(*T)) (bool, error) {
	var changed bool
	err := st.Write(ctx, func(tx *Tx) error {
		var err error
		changed, err = UpdateTx(ctx, tx, s, id, fn)
		return err
	})
	return changed, err
}

// UpdateTx is the guarded setter: fn mutates a loaded copy, and only when the
// encoded fields differ is the record marked dirty, its updatedAt advanced
// and the row written. It reports whether anything changed.
func UpdateTx[T any](ctx context.Context, tx *Tx, s *model.Schema[T], id string, fn func(*T)) (bool, error) {
	r, err := Get(ctx, tx, s, id)
	if err != nil {
		return false, err
	}
	if r == nil {
		return false, fmt.Errorf("update %s %s: %w", s.Collection, id, syncerr.ErrDataIntegrity)
	}
	before := s.Encode(r)
	fn(r)
	if s.Encode(r).Equal(before) {
		return false, nil
	}
	if s.Synced() {
		s.Meta(r).Touch(model.Now())
	}
	return true, Put(ctx, tx, s, r)
}

// Set assigns one field by remote name through the guarded setter.
func Set[T any](ctx context.Context, st *Store, s *model.Schema[T], id, name string, v any) (bool, error) {
	f, val, err := fieldValue(s, name, v)
	if err != nil {
		return false, err
	}
	return Update(ctx, st, s, id, func(r *T) { f.Set(r, val) })
}

func fieldValue[T any](s *model.Schema[T], name string, v any) (model.Field[T], fields.Value, error) {
	f, ok := s.Field(name)
	if !ok {
		return f, fields.Value{}, fmt.Errorf("%s has no field %q: %w", s.Collection, name, syncerr.ErrUnsupported)
	}
	val, err := fields.FromAny(v)
	if err != nil {
		return f, val, fmt.Errorf("%s.%s: %w", s.Collection, name, err)
	}
	if val.Kind() != f.Kind {
		return f, val, fmt.Errorf("%s.%s: got %s, want %s: %w", s.Collection, name, val.Kind(), f.Kind, syncerr.ErrUnsupported)
	}
	return f, val, nil
}

// NextDirty returns the oldest record awaiting upload, or nil.
func NextDirty[T any](ctx context.Context, q Querier, s *model.Schema[T]) (*T, error) {
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE sync_required = 1 ORDER BY updated_at ASC, id ASC LIMIT 1",
		strings.Join(s.AllColumns(), ", "), s.Table)
	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("next dirty %s: %w", s.Table, err)
	}
	rs, err := scanRows(s, rows)
	if err != nil || len(rs) == 0 {
		return nil, err
	}
	return rs[0], nil
}

// CountDirty returns how many records await upload.
func CountDirty[T any](ctx context.Context, q Querier, s *model.Schema[T]) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE sync_required = 1", s.Table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dirty %s: %w", s.Table, err)
	}
	return n, nil
}

// MarkSynced acknowledges an upload of the record as of updatedAt. It always
// clears neverSynced; syncRequired is cleared only if the record was not
// modified since. It reports whether the record is now clean.
func MarkSynced[T any](ctx context.Context, st *Store, s *model.Schema[T], id string, updatedAt int64) (bool, error) {
	var clean bool
	err := st.Write(ctx, func(tx *Tx) error {
		stmt := fmt.Sprintf(`UPDATE %s SET never_synced = 0,
			sync_required = CASE WHEN updated_at = ? THEN 0 ELSE sync_required END
			WHERE id = ?`, s.Table)
		if _, err := tx.ExecContext(ctx, stmt, updatedAt, id); err != nil {
			return fmt.Errorf("mark synced %s %s: %w", s.Table, id, err)
		}
		var required bool
		err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT sync_required FROM %s WHERE id = ?", s.Table), id).Scan(&required)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mark synced %s %s: %w", s.Table, id, syncerr.ErrDataIntegrity)
		}
		if err != nil {
			return fmt.Errorf("mark synced %s %s: %w", s.Table, id, err)
		}
		clean = !required
		tx.Touched(s.Table, id)
		return nil
	})
	return clean, err
}

// MarkNeverSynced flags the record for re-creation on its next upload.
func MarkNeverSynced[T any](ctx context.Context, st *Store, s *model.Schema[T], id string) error {
	return st.Write(ctx, func(tx *Tx) error {
		stmt := fmt.Sprintf("UPDATE %s SET never_synced = 1, sync_required = 1 WHERE id = ?", s.Table)
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("mark never synced %s %s: %w", s.Table, id, err)
		}
		tx.Touched(s.Table, id)
		return nil
	})
}

// Applied summarizes a downloaded batch.
type Applied struct {
	Inserted []string
	Modified []string
	Skipped  int
}

// Apply stores a downloaded batch in one transaction with both flags clean.
// A document equal to a clean local copy is skipped, and so is one older than
// a pending local edit.
func Apply[T any](ctx context.Context, st *Store, s *model.Schema[T], docs []*T) (Applied, error) {
	var res Applied
	err := st.Write(ctx, func(tx *Tx) error {
		res = Applied{}
		for _, r := range docs {
			id := s.ID(r)
			local, err := Get(ctx, tx, s, id)
			if err != nil {
				return err
			}
			if local != nil {
				lm, rm := s.Meta(local), s.Meta(r)
				if lm.SyncRequired && lm.UpdatedAt > rm.UpdatedAt {
					res.Skipped++
					continue
				}
				if !lm.NeverSynced && !lm.SyncRequired && s.Encode(local).Equal(s.Encode(r)) {
					res.Skipped++
					continue
				}
			}
			s.Meta(r).Clean()
			if err := Put(ctx, tx, s, r); err != nil {
				return err
			}
			if local == nil {
				res.Inserted = append(res.Inserted, id)
			} else {
				res.Modified = append(res.Modified, id)
			}
		}
		return nil
	})
	return res, err
}

// Patch is a partial row keyed by remote field name.
type Patch map[string]any

// Merge upserts only the patched columns of row id, creating the row with
// column defaults when it does not exist.
func Merge[T any](ctx context.Context, tx *Tx, s *model.Schema[T], id string, p Patch) error {
	names := slices.DeleteFunc(slices.Sorted(maps.Keys(p)), func(k string) bool { return k == "objectId" })
	cols := []string{"id"}
	args := []any{id}
	sets := make([]string, 0, len(names))
	for _, name := range names {
		f, val, err := fieldValue(s, name, p[name])
		if err != nil {
			return err
		}
		cols = append(cols, f.Column)
		args = append(args, val.Any())
		sets = append(sets, f.Column+" = excluded."+f.Column)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.Table, strings.Join(cols, ", "), placeholders(len(cols)))
	if len(sets) == 0 {
		stmt += " ON CONFLICT(id) DO NOTHING"
	} else {
		stmt += " ON CONFLICT(id) DO UPDATE SET " + strings.Join(sets, ", ")
	}
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("merge %s %s: %w", s.Table, id, err)
	}
	tx.Touched(s.Table, id)
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
