package cookbook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ordering struct {
	field string
	desc  bool
}

// Query is an immutable description of a store-side query. Every builder
// method returns a copy; nothing runs until a terminal method is called.
type Query[T any] struct {
	set        *Set[T]
	filters    []Predicate
	orders     []ordering
	limit      int
	includes   []string
	noTracking bool
}

func (q *Query[T]) clone() *Query[T] {
	c := *q
	c.filters = slices.Clone(q.filters)
	c.orders = slices.Clone(q.orders)
	c.includes = slices.Clone(q.includes)
	return &c
}

// Where narrows the query; multiple filters are combined with AND.
func (q *Query[T]) Where(p Predicate) *Query[T] {
	c := q.clone()
	if p != nil {
		c.filters = append(c.filters, p)
	}
	return c
}

func (q *Query[T]) OrderBy(field string) *Query[T] {
	c := q.clone()
	c.orders = append(c.orders, ordering{field: field})
	return c
}

func (q *Query[T]) OrderByDescending(field string) *Query[T] {
	c := q.clone()
	c.orders = append(c.orders, ordering{field: field, desc: true})
	return c
}

// Take limits the number of rows returned.
func (q *Query[T]) Take(n int) *Query[T] {
	c := q.clone()
	c.limit = n
	return c
}

// Include loads the named relation together with each result.
func (q *Query[T]) Include(relation string) *Query[T] {
	c := q.clone()
	c.includes = append(c.includes, relation)
	return c
}

// AsNoTracking returns results that the context does not track.
func (q *Query[T]) AsNoTracking() *Query[T] {
	c := q.clone()
	c.noTracking = true
	return c
}

func (q *Query[T]) statement(ctx context.Context) (*gorm.DB, error) {
	if q.set.ctx.closed {
		return nil, ErrClosed
	}

	s := q.set.schema
	tx := q.set.ctx.db.WithContext(ctx).Model(new(T))

	if len(q.filters) > 0 {
		expr, err := And(q.filters...).expression(s)
		if err != nil {
			return nil, err
		}
		if expr != nil {
			tx = tx.Where(expr)
		}
	}

	for _, o := range q.orders {
		col, err := column(s, o.field)
		if err != nil {
			return nil, err
		}
		tx = tx.Order(clause.OrderByColumn{Column: col, Desc: o.desc})
	}

	if q.limit > 0 {
		tx = tx.Limit(q.limit)
	}

	for _, name := range q.includes {
		if _, ok := s.Relationships.Relations[name]; !ok {
			return nil, fmt.Errorf("%w: %s has no relation %q", ErrUnknownName, s.Name, name)
		}
		tx = tx.Preload(name)
	}

	return tx, nil
}

func (q *Query[T]) op(verb string) string {
	return verb + " " + q.set.schema.Table
}

func (q *Query[T]) track(ctx context.Context, entity *T) *T {
	if q.noTracking {
		return entity
	}
	return q.set.resolve(ctx, entity, q.includes)
}

// ToList runs the query and returns every matching entity.
func (q *Query[T]) ToList(ctx context.Context) ([]*T, error) {
	tx, err := q.statement(ctx)
	if err != nil {
		return nil, wrap(q.op("query"), err)
	}

	var rows []*T
	if err := tx.Find(&rows).Error; err != nil {
		return nil, wrap(q.op("query"), err)
	}

	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		out = append(out, q.track(ctx, row))
	}
	return out, nil
}

// First returns the first match. It returns an error wrapping
// gorm.ErrRecordNotFound when there is none.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	list, err := q.Take(1).ToList(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &Error{Op: q.op("query"), Kind: ErrStore, Err: gorm.ErrRecordNotFound}
	}
	return list[0], nil
}

// Count returns the number of matching rows.
func (q *Query[T]) Count(ctx context.Context) (int64, error) {
	c := q.clone()
	c.orders, c.includes, c.limit = nil, nil, 0

	tx, err := c.statement(ctx)
	if err != nil {
		return 0, wrap(q.op("count"), err)
	}

	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, wrap(q.op("count"), err)
	}
	return n, nil
}

// Rows runs the query and returns a cursor over the results. The cursor
// holds a connection until it is exhausted or closed. On a pool limited to
// one connection, such as the mock database, any other query or
// SaveChanges made while the cursor is open blocks until ctx is done, so
// finish or close the cursor first.
func (q *Query[T]) Rows(ctx context.Context) (*Cursor[T], error) {
	if len(q.includes) > 0 {
		return nil, &Error{Op: q.op("query"), Kind: ErrStore, Err: errors.New("Include is not supported by Rows, use ToList")}
	}

	tx, err := q.statement(ctx)
	if err != nil {
		return nil, wrap(q.op("query"), err)
	}

	rows, err := tx.Rows()
	if err != nil {
		return nil, wrap(q.op("query"), err)
	}
	return &Cursor[T]{query: q, ctx: ctx, db: tx, rows: rows}, nil
}

// Cursor walks query results once. It cannot be rewound. It keeps its
// connection busy until Next returns false or Close is called.
type Cursor[T any] struct {
	query   *Query[T]
	ctx     context.Context
	db      *gorm.DB
	rows    *sql.Rows
	current *T
	err     error
	done    bool
}

// Next advances to the next entity. It returns false when the results are
// exhausted or an error occurred; the cursor is closed at that point.
func (c *Cursor[T]) Next() bool {
	if c.done {
		return false
	}

	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = wrap(c.query.op("read"), err)
		}
		_ = c.Close()
		return false
	}

	entity := new(T)
	if err := c.db.ScanRows(c.rows, entity); err != nil {
		c.err = wrap(c.query.op("scan"), err)
		_ = c.Close()
		return false
	}

	c.current = c.query.track(c.ctx, entity)
	return true
}

// Entity returns the entity read by the last successful Next.
func (c *Cursor[T]) Entity() *T {
	return c.current
}

func (c *Cursor[T]) Err() error {
	return c.err
}

// Close releases the cursor's connection. It is safe to call repeatedly.
func (c *Cursor[T]) Close() error {
	if c.done {
		return nil
	}
	c.done = true
	c.current = nil
	return c.rows.Close()
}
