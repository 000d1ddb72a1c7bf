package cookbook

import (
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cookbook/models"
)

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Porridge", "Porridge"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`C:\recipes`, `C:\\recipes`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Fatalf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogicalCollapsesSmallGroups(t *testing.T) {
	t.Parallel()

	c := newTestContext(t, false)
	s := c.Dishes.schema

	expr, err := Or().expression(s)
	if err != nil || expr != nil {
		t.Fatalf("empty Or = (%v, %v), want nil", expr, err)
	}

	expr, err = Or(Eq("Title", "Soup")).expression(s)
	if err != nil {
		t.Fatalf("single Or: %v", err)
	}
	if _, ok := expr.(clause.Eq); !ok {
		t.Fatalf("single Or = %T, want the bare comparison", expr)
	}

	expr, err = Or(Eq("Title", "Soup"), IsNull("Stars")).expression(s)
	if err != nil {
		t.Fatalf("double Or: %v", err)
	}
	if _, ok := expr.(clause.OrConditions); !ok {
		t.Fatalf("double Or = %T, want OrConditions", expr)
	}

	// Empty nested groups drop out instead of leaving nil expressions.
	for _, p := range []Predicate{
		And(Or(), Eq("Title", "Soup")),
		Or(Not(And()), Eq("Title", "Soup")),
	} {
		expr, err = p.expression(s)
		if err != nil {
			t.Fatalf("nested empty group: %v", err)
		}
		if _, ok := expr.(clause.Eq); !ok {
			t.Fatalf("nested empty group = %T, want the bare comparison", expr)
		}
	}
}

func TestPredicateErrors(t *testing.T) {
	t.Parallel()

	c := newTestContext(t, false)
	s := c.Dishes.schema

	if _, err := Eq("Calories", 1).expression(s); !errors.Is(err, ErrUnknownName) {
		t.Fatalf("unknown field error = %v, want ErrUnknownName", err)
	}
	if _, err := And(Eq("Title", "x"), Not(Gt("Calories", 1))).expression(s); !errors.Is(err, ErrUnknownName) {
		t.Fatalf("nested unknown field error = %v, want ErrUnknownName", err)
	}
	if _, err := Not(nil).expression(s); err == nil {
		t.Fatal("expected error for negation of nil")
	}
	// Relations are not columns.
	if _, err := Eq("Ingredients", 1).expression(s); !errors.Is(err, ErrUnknownName) {
		t.Fatalf("relation filter error = %v, want ErrUnknownName", err)
	}
}

func TestContainsRendersEscapedLike(t *testing.T) {
	t.Parallel()

	c := newTestContext(t, false)
	expr, err := Contains("Title", "50%").expression(c.Dishes.schema)
	if err != nil {
		t.Fatalf("expression: %v", err)
	}

	sql := c.DB().ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Model(&models.Dish{}).Where(expr).Find(&[]models.Dish{})
	})
	for _, want := range []string{"title", "LIKE", `50\%`, "ESCAPE"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("sql %q does not contain %q", sql, want)
		}
	}
}
