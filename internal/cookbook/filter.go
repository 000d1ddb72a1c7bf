package cookbook

import (
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Predicate describes a filter that is translated into a WHERE clause.
// Field names are Go field names or column names of the queried entity.
type Predicate interface {
	expression(s *schema.Schema) (clause.Expression, error)
}

type comparison struct {
	field string
	op    string
	value any
}

type logical struct {
	op    string
	terms []Predicate
}

type negation struct {
	term Predicate
}

func Eq(field string, value any) Predicate  { return comparison{field: field, op: "=", value: value} }
func Ne(field string, value any) Predicate  { return comparison{field: field, op: "<>", value: value} }
func Gt(field string, value any) Predicate  { return comparison{field: field, op: ">", value: value} }
func Gte(field string, value any) Predicate { return comparison{field: field, op: ">=", value: value} }
func Lt(field string, value any) Predicate  { return comparison{field: field, op: "<", value: value} }
func Lte(field string, value any) Predicate { return comparison{field: field, op: "<=", value: value} }

// IsNull matches rows where field has no value.
func IsNull(field string) Predicate { return comparison{field: field, op: "=", value: nil} }

// Contains matches rows whose field contains substr literally; LIKE
// wildcards in substr are escaped.
func Contains(field, substr string) Predicate {
	return comparison{field: field, op: "like", value: "%" + escapeLike(substr) + "%"}
}

// StartsWith matches rows whose field begins with prefix.
func StartsWith(field, prefix string) Predicate {
	return comparison{field: field, op: "like", value: escapeLike(prefix) + "%"}
}

func And(terms ...Predicate) Predicate { return logical{op: "and", terms: terms} }
func Or(terms ...Predicate) Predicate  { return logical{op: "or", terms: terms} }
func Not(term Predicate) Predicate     { return negation{term: term} }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func column(s *schema.Schema, name string) (clause.Column, error) {
	field := s.LookUpField(name)
	if field == nil || field.DBName == "" {
		return clause.Column{}, fmt.Errorf("%w: %s has no column %q", ErrUnknownName, s.Name, name)
	}
	return clause.Column{Table: clause.CurrentTable, Name: field.DBName}, nil
}

func (c comparison) expression(s *schema.Schema) (clause.Expression, error) {
	col, err := column(s, c.field)
	if err != nil {
		return nil, err
	}

	switch c.op {
	case "=":
		return clause.Eq{Column: col, Value: c.value}, nil
	case "<>":
		return clause.Neq{Column: col, Value: c.value}, nil
	case ">":
		return clause.Gt{Column: col, Value: c.value}, nil
	case ">=":
		return clause.Gte{Column: col, Value: c.value}, nil
	case "<":
		return clause.Lt{Column: col, Value: c.value}, nil
	case "<=":
		return clause.Lte{Column: col, Value: c.value}, nil
	case "like":
		return clause.Expr{SQL: `? LIKE ? ESCAPE '\'`, Vars: []any{col, c.value}}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", c.op)
	}
}

func (l logical) expression(s *schema.Schema) (clause.Expression, error) {
	exprs := make([]clause.Expression, 0, len(l.terms))
	for _, term := range l.terms {
		if term == nil {
			continue
		}
		expr, err := term.expression(s)
		if err != nil {
			return nil, err
		}
		// Empty groups add no condition.
		if expr == nil {
			continue
		}
		exprs = append(exprs, expr)
	}

	// A lone OrConditions would be joined to its neighbours with OR.
	switch {
	case len(exprs) == 0:
		return nil, nil
	case len(exprs) == 1:
		return exprs[0], nil
	case l.op == "or":
		return clause.Or(exprs...), nil
	default:
		return clause.And(exprs...), nil
	}
}

func (n negation) expression(s *schema.Schema) (clause.Expression, error) {
	if n.term == nil {
		return nil, fmt.Errorf("negation of nil predicate")
	}
	expr, err := n.term.expression(s)
	if err != nil || expr == nil {
		return nil, err
	}
	return clause.Not(expr), nil
}
