// Package query describes conjunctive filters over document fields. The same
// Filter is evaluated by the relay, by the in-process remote and translated
// to SQL by the local store.
package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/chatsync/internal/fields"
)

// Op is a comparison operator.
type Op string

const (
	Eq Op = "=="
	Ne Op = "!="
	Gt Op = ">"
	Ge Op = ">="
	Lt Op = "<"
	Le Op = "<="
	In Op = "in"
)

func (o Op) valid() bool {
	switch o {
	case Eq, Ne, Gt, Ge, Lt, Le, In:
		return true
	}
	return false
}

// Cond is one predicate of a filter. In uses Values, every other op uses Value.
type Cond struct {
	Field  string         `json:"field"`
	Op     Op             `json:"op"`
	Value  fields.Value   `json:"value,omitzero"`
	Values []fields.Value `json:"values,omitempty"`
}

// Filter is a conjunction of conditions. The empty filter matches everything.
type Filter []Cond

// Where starts a filter with a single condition.
func Where(field string, op Op, v fields.Value) Filter {
	return Filter{{Field: field, Op: op, Value: v}}
}

// And returns a copy of f extended with another condition.
func (f Filter) And(field string, op Op, v fields.Value) Filter {
	out := slices.Clone(f)
	return append(out, Cond{Field: field, Op: op, Value: v})
}

// AndIn returns a copy of f extended with a membership condition.
func (f Filter) AndIn(field string, vs ...fields.Value) Filter {
	out := slices.Clone(f)
	return append(out, Cond{Field: field, Op: In, Values: vs})
}

// Validate checks operators and operand presence.
func (f Filter) Validate() error {
	for _, c := range f {
		if c.Field == "" {
			return fmt.Errorf("condition without field")
		}
		if !c.Op.valid() {
			return fmt.Errorf("field %q: unknown operator %q", c.Field, c.Op)
		}
		if c.Op == In {
			if len(c.Values) == 0 {
				return fmt.Errorf("field %q: in requires values", c.Field)
			}
			continue
		}
		if !c.Value.IsValid() {
			return fmt.Errorf("field %q: missing value", c.Field)
		}
	}
	return nil
}

// Match evaluates f against a document. A missing field never matches.
func (f Filter) Match(doc fields.Map) (bool, error) {
	for _, c := range f {
		v, ok := doc[c.Field]
		if !ok {
			return false, nil
		}
		hit, err := c.match(v)
		if err != nil {
			return false, err
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

func (c Cond) match(v fields.Value) (bool, error) {
	if c.Op == In {
		for _, want := range c.Values {
			if v.Equal(want) {
				return true, nil
			}
		}
		return false, nil
	}
	n, err := fields.Compare(v, c.Value)
	if err != nil {
		return false, fmt.Errorf("field %q: %w", c.Field, err)
	}
	switch c.Op {
	case Eq:
		return n == 0, nil
	case Ne:
		return n != 0, nil
	case Gt:
		return n > 0, nil
	case Ge:
		return n >= 0, nil
	case Lt:
		return n < 0, nil
	case Le:
		return n <= 0, nil
	}
	return false, fmt.Errorf("field %q: unknown operator %q", c.Field, c.Op)
}

// Key is a canonical string for f, used to deduplicate subscriptions.
func (f Filter) Key() string {
	parts := make([]string, 0, len(f))
	for _, c := range f {
		if c.Op == In {
			vals := make([]string, len(c.Values))
			for i, v := range c.Values {
				vals[i] = v.String()
			}
			parts = append(parts, fmt.Sprintf("%s in [%s]", c.Field, strings.Join(vals, ",")))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Field, c.Op, c.Value))
	}
	slices.Sort(parts)
	return strings.Join(parts, " && ")
}

// Order sorts query results by one field.
type Order struct {
	Field string
	Desc  bool
}

// Asc and Desc build orders.
func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }
