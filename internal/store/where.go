package store

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/query"
	"github.com/matheus3301/chatsync/internal/syncerr"
)

var sqlOps = map[query.Op]string{
	query.Eq: "=",
	query.Ne: "<>",
	query.Gt: ">",
	query.Ge: ">=",
	query.Lt: "<",
	query.Le: "<=",
}

// where translates a filter over remote field names into a SQL predicate.
func where[T any](s *model.Schema[T], f query.Filter) (string, []any, error) {
	if len(f) == 0 {
		return "1 = 1", nil, nil
	}
	if err := f.Validate(); err != nil {
		return "", nil, fmt.Errorf("%s filter: %w", s.Collection, err)
	}
	parts := make([]string, 0, len(f))
	var args []any
	for _, c := range f {
		col, ok := s.Column(c.Field)
		if !ok {
			return "", nil, fmt.Errorf("%s filter: unknown field %q: %w", s.Collection, c.Field, syncerr.ErrUnsupported)
		}
		if c.Op == query.In {
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, marks))
			for _, v := range c.Values {
				args = append(args, v.Any())
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", col, sqlOps[c.Op]))
		args = append(args, c.Value.Any())
	}
	return strings.Join(parts, " AND "), args, nil
}

func orderBy[T any](s *model.Schema[T], orders []query.Order) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(orders)+1)
	for _, o := range orders {
		col, ok := s.Column(o.Field)
		if !ok {
			return "", fmt.Errorf("%s order: unknown field %q: %w", s.Collection, o.Field, syncerr.ErrUnsupported)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, "id ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
