package cookbook

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"cookbook/models"
)

func titles(dishes []*models.Dish) []string {
	out := make([]string, 0, len(dishes))
	for _, d := range dishes {
		out = append(out, d.Title)
	}
	return out
}

func TestContainsTreatsWildcardsLiterally(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestContext(t, false)
	for _, title := range []string{"100% Rye", "1000 Rye Crackers", "a_b soup", "axb soup"} {
		c.Dishes.Add(&models.Dish{Title: title})
	}
	if _, err := c.SaveChanges(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	tests := []struct {
		pred Predicate
		want []string
	}{
		{Contains("Title", "100%"), []string{"100% Rye"}},
		{Contains("Title", "a_b"), []string{"a_b soup"}},
		{StartsWith("Title", "100"), []string{"100% Rye", "1000 Rye Crackers"}},
		{Contains("Title", "Rye"), []string{"100% Rye", "1000 Rye Crackers"}},
	}
	for _, tt := range tests {
		got, err := c.Dishes.Where(tt.pred).OrderBy("Title").ToList(ctx)
		if err != nil {
			t.Fatalf("query %+v: %v", tt.pred, err)
		}
		if g := titles(got); len(g) != len(tt.want) || (len(g) > 0 && g[0] != tt.want[0]) {
			t.Fatalf("query %+v = %v, want %v", tt.pred, g, tt.want)
		}
	}
}

func TestPredicatesCombine(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestContext(t, true)

	tests := []struct {
		name string
		q    *Query[models.Dish]
		want int64
	}{
		{"all", c.Dishes.Query(), 3},
		{"gte", c.Dishes.Where(Gte("Stars", 4)), 1},
		{"lt", c.Dishes.Where(Lt("Stars", 4)), 1},
		{"ne", c.Dishes.Where(Ne("Title", "Tomato Soup")), 2},
		{"or", c.Dishes.Where(Or(Eq("Title", "Tomato Soup"), IsNull("Stars"))), 2},
		{"not", c.Dishes.Where(Not(IsNull("Notes"))), 2},
		{"chained where", c.Dishes.Where(Gt("Stars", 0)).Where(Lte("Stars", 3)), 1},
		{"single or term", c.Dishes.Where(Or(Eq("Title", "Tomato Soup"))).Where(Eq("Stars", 5)), 0},
		{"column name", c.Dishes.Where(Eq("title", "Green Salad")), 1},
		{"empty and", c.Dishes.Where(And()), 3},
		{"empty group in and", c.Dishes.Where(And(Or(), Eq("Title", "Green Salad"))), 1},
		{"negated empty group in or", c.Dishes.Where(Or(Not(And()), Eq("Title", "Green Salad"))), 1},
	}
	for _, tt := range tests {
		got, err := tt.q.Count(ctx)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: count = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestOrderAndTake(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestContext(t, true)

	got, err := c.Dishes.Query().OrderBy("Title").Take(2).ToList(ctx)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if g := titles(got); len(g) != 2 || g[0] != "Buttermilk Pancakes" || g[1] != "Green Salad" {
		t.Fatalf("titles = %v", g)
	}

	got, err = c.Dishes.Query().OrderByDescending("Title").Take(1).ToList(ctx)
	if err != nil {
		t.Fatalf("query descending: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Tomato Soup" {
		t.Fatalf("titles = %v", titles(got))
	}
}

func TestQueryIsImmutable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestContext(t, true)

	base := c.Dishes.Query()
	narrowed := base.Where(Eq("Title", "Tomato Soup"))

	all, err := base.Count(ctx)
	if err != nil {
		t.Fatalf("count base: %v", err)
	}
	one, err := narrowed.Count(ctx)
	if err != nil {
		t.Fatalf("count narrowed: %v", err)
	}
	if all != 3 || one != 1 {
		t.Fatalf("counts = (%d, %d), want (3, 1)", all, one)
	}
}

func TestUnknownFieldIsStoreError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestContext(t, true)

	_, err := c.Dishes.Where(Eq("Calories", 300)).ToList(ctx)
	if !errors.Is(err, ErrStore) || !errors.Is(err, ErrUnknownName) {
		t.Fatalf("ToList error = %v, want unknown name store error", err)
	}

	_, err = c.Dishes.Query().OrderBy("Calories").ToList(ctx)
	if !errors.Is(err, ErrUnknownName) {
		t.Fatalf("OrderBy error = %v, want ErrUnknownName", err)
	}

	_, err = c.Dishes.Query().Include("Reviews").ToList(ctx)
	if !errors.Is(err, ErrUnknownName) {
		t.Fatalf("Include error = %v, want ErrUnknownName", err)
	}
}

func TestIncludeLoadsIngredients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestContext(t, true)

	plain, err := c.Dishes.Where(Eq("Title", "Buttermilk Pancakes")).First(ctx)
	if err != nil {
		t.Fatalf("load pancakes: %v", err)
	}
	if len(plain.Ingredients) != 0 {
		t.Fatalf("ingredients loaded without Include: %d", len(plain.Ingredients))
	}

	loaded, err := c.Dishes.Where(Eq("Title", "Buttermilk Pancakes")).Include("Ingredients").First(ctx)
	if err != nil {
		t.Fatalf("load pancakes with ingredients: %v", err)
	}
	if loaded != plain {
		t.Fatal("expected the tracked instance")
	}
	if len(loaded.Ingredients) != 3 {
		t.Fatalf("ingredients = %d, want 3", len(loaded.Ingredients))
	}
	if c.HasChanges() {
		t.Fatal("loading a relation must not stage changes")
	}
}

func TestRowsStreamsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestContext(t, true)

	cursor, err := c.Dishes.Query().OrderBy("Title").Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	defer cursor.Close()

	var seen []string
	for cursor.Next() {
		dish := cursor.Entity()
		if state, ok := c.Dishes.State(dish); !ok || state != Unchanged {
			t.Fatalf("streamed entity state = %v (tracked %t)", state, ok)
		}
		seen = append(seen, dish.Title)
	}
	if err := cursor.Err(); err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if len(seen) != 3 || seen[0] != "Buttermilk Pancakes" {
		t.Fatalf("streamed %v", seen)
	}

	if cursor.Next() {
		t.Fatal("an exhausted cursor must not restart")
	}
	if cursor.Entity() != nil {
		t.Fatal("expected no current entity after exhaustion")
	}
}

func TestRowsRejectsInclude(t *testing.T) {
	t.Parallel()

	c := newTestContext(t, true)
	if _, err := c.Dishes.Query().Include("Ingredients").Rows(context.Background()); !errors.Is(err, ErrStore) {
		t.Fatalf("Rows error = %v, want ErrStore", err)
	}
}

func TestFirstWithoutMatch(t *testing.T) {
	t.Parallel()

	c := newTestContext(t, true)
	_, err := c.Dishes.Where(Eq("Title", "Porridge")).First(context.Background())
	if !errors.Is(err, ErrStore) || !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("First error = %v, want record not found", err)
	}

	_, err = c.Dishes.Find(context.Background(), uint(999))
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Find error = %v, want record not found", err)
	}
}

func TestAsNoTrackingLeavesContextClean(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestContext(t, true)

	dishes, err := c.Dishes.Query().AsNoTracking().ToList(ctx)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(dishes) != 3 {
		t.Fatalf("dishes = %d, want 3", len(dishes))
	}
	if entries := c.ChangeTracker(); len(entries) != 0 {
		t.Fatalf("expected nothing tracked, got %d entries", len(entries))
	}

	dishes[0].Title = "Edited"
	if c.HasChanges() {
		t.Fatal("edits to untracked entities must not be staged")
	}
}
