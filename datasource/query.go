package datasource

import (
	"errors"
	"fmt"
)

const (
	CollectionQuotes        = "quotes"
	CollectionInvoices      = "invoices"
	CollectionReminderLogs  = "reminder_logs"
	CollectionOrganisations = "organisations"
)

type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpIn      Op = "in"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpNotNull Op = "not_null"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnknownFunction   = errors.New("unknown function")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Query selects records of one collection. All filters must match.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

func In[T any](column string, values ...T) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

func Gte(column string, value any) Filter {
	return Filter{Column: column, Op: OpGte, Value: value}
}

func NotNull(column string) Filter {
	return Filter{Column: column, Op: OpNotNull}
}

func (q Query) validate() error {
	if err := checkIdentifier(q.Collection); err != nil {
		return err
	}
	if q.OrderBy != "" {
		if err := checkIdentifier(q.OrderBy); err != nil {
			return err
		}
	}
	for _, f := range q.Filters {
		if err := checkIdentifier(f.Column); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpNeq, OpIn, OpGt, OpGte, OpLt, OpLte, OpNotNull:
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedFilter, f.Op)
		}
	}
	return nil
}

// checkIdentifier accepts lower-case snake_case names only; they end up in
// SQL and in URL paths.
func checkIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return nil
}
