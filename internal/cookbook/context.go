// Package cookbook is a unit-of-work layer over gorm: typed sets stage
// inserts, updates and removals in memory and SaveChanges commits them as one
// transaction.
package cookbook

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	applog "cookbook/internal/log"
	"cookbook/models"
)

// EntityState is the pending operation recorded for a tracked entity.
type EntityState int

const (
	Unchanged EntityState = iota
	Added
	Modified
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

type entry struct {
	entity   any
	owner    tracker
	state    EntityState
	explicit bool
	snapshot map[string]any
}

type tracker interface {
	entitySchema() *schema.Schema
	index(e *entry)
	drop(e *entry)
}

// Entry is a read-only view of one tracked entity.
type Entry struct {
	Entity any
	State  EntityState
}

// Context tracks entities loaded or registered through its sets. It is not
// safe for concurrent use.
type Context struct {
	Dishes      *Set[models.Dish]
	Ingredients *Set[models.DishIngredient]

	db      *gorm.DB
	entries []*entry
	release func() error
	closed  bool
}

// New wraps db. Close on the returned Context leaves db open.
func New(db *gorm.DB) (*Context, error) {
	return newContext(db, nil)
}

func newContext(db *gorm.DB, release func() error) (*Context, error) {
	if db == nil {
		return nil, &Error{Op: "create context", Kind: ErrConfiguration, Err: errors.New("database handle is nil")}
	}

	c := &Context{db: db, release: release}

	var err error
	if c.Dishes, err = newSet[models.Dish](c); err != nil {
		return nil, err
	}
	if c.Ingredients, err = newSet[models.DishIngredient](c); err != nil {
		return nil, err
	}
	return c, nil
}

// DB exposes the underlying gorm handle.
func (c *Context) DB() *gorm.DB {
	return c.db
}

// HasChanges reports whether SaveChanges would write anything.
func (c *Context) HasChanges() bool {
	return len(c.pending(context.Background())) > 0
}

// ChangeTracker lists tracked entities with their current state, detecting
// field changes on unchanged entities.
func (c *Context) ChangeTracker() []Entry {
	ctx := context.Background()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		state := e.state
		if state == Unchanged && len(changes(ctx, e.owner.entitySchema(), e.entity, e.snapshot)) > 0 {
			state = Modified
		}
		out = append(out, Entry{Entity: e.entity, State: state})
	}
	return out
}

type change struct {
	entry   *entry
	state   EntityState
	columns map[string]any
	fresh   bool
}

// pending returns staged work ordered inserts, updates, deletes; each group
// keeps registration order.
func (c *Context) pending(ctx context.Context) []change {
	var inserts, updates, deletes []change
	for _, e := range c.entries {
		s := e.owner.entitySchema()
		switch e.state {
		case Added:
			_, zero := primaryKey(ctx, s, e.entity)
			inserts = append(inserts, change{entry: e, state: Added, fresh: zero})
		case Deleted:
			deletes = append(deletes, change{entry: e, state: Deleted})
		case Modified:
			updates = append(updates, change{entry: e, state: Modified, columns: snapshotOf(ctx, s, e.entity)})
		case Unchanged:
			if diff := changes(ctx, s, e.entity, e.snapshot); len(diff) > 0 {
				updates = append(updates, change{entry: e, state: Modified, columns: diff})
			}
		}
	}

	out := make([]change, 0, len(inserts)+len(updates)+len(deletes))
	out = append(out, inserts...)
	out = append(out, updates...)
	return append(out, deletes...)
}

// SaveChanges validates and commits every staged change in one transaction
// and returns the number of entities written. When it fails nothing is
// committed, generated keys are cleared and the changes stay staged.
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	const op = "save changes"
	if c.closed {
		return 0, &Error{Op: op, Kind: ErrStore, Err: ErrClosed}
	}

	work := c.pending(ctx)
	if len(work) == 0 {
		return 0, nil
	}

	if err := validate(work); err != nil {
		return 0, &Error{Op: op, Kind: ErrValidation, Err: err}
	}

	var unsaved []keyReset
	for _, ch := range work {
		if ch.state == Added && ch.fresh {
			unsaved = append(unsaved, unsavedKeys(ctx, ch.entry.owner.entitySchema(), ch.entry.entity)...)
		}
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ch := range work {
			if err := apply(ctx, tx, ch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, r := range unsaved {
			r.reset(ctx)
		}
		return 0, wrap(op, err)
	}

	c.accept(ctx, work)
	applog.Debug(ctx, "changes saved", "entities", len(work))
	return len(work), nil
}

func validate(work []change) error {
	var errs []error
	for _, ch := range work {
		if ch.state == Deleted {
			continue
		}
		if constrained, ok := ch.entry.entity.(models.Constrained); ok {
			if err := models.Validate(constrained); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func apply(ctx context.Context, tx *gorm.DB, ch change) error {
	s := ch.entry.owner.entitySchema()
	entity := ch.entry.entity

	switch ch.state {
	case Added:
		if _, zero := primaryKey(ctx, s, entity); ch.fresh && !zero {
			// Already written as part of another entity's graph.
			return nil
		}
		if err := tx.Create(entity).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", s.Table, err)
		}
	case Modified:
		key, _ := primaryKey(ctx, s, entity)
		res := tx.Model(entity).Updates(ch.columns)
		if res.Error != nil {
			return fmt.Errorf("update %s %v: %w", s.Table, key, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("update %s %v: %w", s.Table, key, errNoRows)
		}
	case Deleted:
		key, _ := primaryKey(ctx, s, entity)
		res := tx.Delete(entity)
		if res.Error != nil {
			return fmt.Errorf("delete from %s %v: %w", s.Table, key, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("delete from %s %v: %w", s.Table, key, errNoRows)
		}
	}
	return nil
}

func (c *Context) accept(ctx context.Context, work []change) {
	for _, ch := range work {
		e := ch.entry
		switch ch.state {
		case Added, Modified:
			e.state = Unchanged
			e.explicit = false
			e.snapshot = snapshotOf(ctx, e.owner.entitySchema(), e.entity)
			e.owner.index(e)
		case Deleted:
			c.untrack(e)
			c.forgetDependents(ctx, e)
		}
	}
}

func (c *Context) track(e *entry) {
	c.entries = append(c.entries, e)
}

func (c *Context) untrack(e *entry) {
	e.owner.drop(e)
	c.entries = slices.DeleteFunc(c.entries, func(other *entry) bool { return other == e })
}

// forgetDependents stops tracking entities whose foreign key points at the
// deleted row; the store removes them by cascade.
func (c *Context) forgetDependents(ctx context.Context, deleted *entry) {
	parent := deleted.owner.entitySchema()
	key, zero := primaryKey(ctx, parent, deleted.entity)
	if zero {
		return
	}

	for _, e := range slices.Clone(c.entries) {
		if references(ctx, e.owner.entitySchema(), e.entity, parent, key) {
			c.untrack(e)
		}
	}
}

// Close stops tracking and releases the connection pool when the Context
// owns it. Calling Close more than once is a no-op.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	if n := len(c.pending(context.Background())); n > 0 {
		applog.Debug(context.Background(), "closing context with unsaved changes", "pending", n)
	}
	c.entries = nil
	c.Dishes.reset()
	c.Ingredients.reset()

	if c.release != nil {
		if err := c.release(); err != nil {
			return &Error{Op: "close context", Kind: ErrConnection, Err: err}
		}
	}
	return nil
}
