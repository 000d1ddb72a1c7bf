package cookbook

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Set is the tracked collection of one entity type. Registering an entity
// only records intent; nothing reaches the store before SaveChanges.
type Set[T any] struct {
	ctx    *Context
	schema *schema.Schema
	byPtr  map[*T]*entry
	byKey  map[any]*T
}

func newSet[T any](c *Context) (*Set[T], error) {
	stmt := &gorm.Statement{DB: c.db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, &Error{Op: fmt.Sprintf("parse %T", *new(T)), Kind: ErrStore, Err: err}
	}

	return &Set[T]{
		ctx:    c,
		schema: stmt.Schema,
		byPtr:  make(map[*T]*entry),
		byKey:  make(map[any]*T),
	}, nil
}

func (s *Set[T]) entitySchema() *schema.Schema {
	return s.schema
}

func (s *Set[T]) index(e *entry) {
	entity := e.entity.(*T)
	if key, zero := primaryKey(context.Background(), s.schema, entity); !zero {
		s.byKey[key] = entity
	}
}

func (s *Set[T]) drop(e *entry) {
	entity := e.entity.(*T)
	delete(s.byPtr, entity)
	if key, zero := primaryKey(context.Background(), s.schema, entity); !zero && s.byKey[key] == entity {
		delete(s.byKey, key)
	}
}

func (s *Set[T]) reset() {
	clear(s.byPtr)
	clear(s.byKey)
}

func (s *Set[T]) track(entity *T, state EntityState) *entry {
	e := &entry{entity: entity, owner: s, state: state}
	if state != Added {
		e.snapshot = snapshotOf(context.Background(), s.schema, entity)
	}
	s.byPtr[entity] = e
	s.index(e)
	s.ctx.track(e)
	return e
}

func mustEntity[T any](op string, entity *T) {
	if entity == nil {
		panic(fmt.Sprintf("cookbook: %s called with nil %T", op, entity))
	}
}

// Add stages entity for insertion. Adding an entity staged for removal
// cancels the removal.
func (s *Set[T]) Add(entity *T) {
	mustEntity("Add", entity)
	if e, ok := s.byPtr[entity]; ok {
		if e.state == Deleted {
			e.state = Unchanged
		}
		return
	}
	s.track(entity, Added)
}

// Attach starts tracking entity as an existing row. Entities without a key
// are staged for insertion instead.
func (s *Set[T]) Attach(entity *T) {
	mustEntity("Attach", entity)
	if _, ok := s.byPtr[entity]; ok {
		return
	}
	if _, zero := primaryKey(context.Background(), s.schema, entity); zero {
		s.track(entity, Added)
		return
	}
	s.track(entity, Unchanged)
}

// Update stages a write of every column of entity, tracked or not.
func (s *Set[T]) Update(entity *T) {
	mustEntity("Update", entity)
	e, ok := s.byPtr[entity]
	if !ok {
		if _, zero := primaryKey(context.Background(), s.schema, entity); zero {
			s.track(entity, Added)
			return
		}
		e = s.track(entity, Modified)
	}
	if e.state == Added {
		return
	}
	e.state = Modified
	e.explicit = true
}

// Remove stages entity for deletion. Removing an entity that was added but
// never saved just forgets it, and an untracked entity without a key is
// ignored.
func (s *Set[T]) Remove(entity *T) {
	mustEntity("Remove", entity)
	e, ok := s.byPtr[entity]
	if !ok {
		if _, zero := primaryKey(context.Background(), s.schema, entity); zero {
			return
		}
		s.track(entity, Deleted)
		return
	}
	if e.state == Added {
		s.ctx.untrack(e)
		return
	}
	e.state = Deleted
}

// State returns the tracked state of entity.
func (s *Set[T]) State(entity *T) (EntityState, bool) {
	e, ok := s.byPtr[entity]
	if !ok {
		return Unchanged, false
	}
	if e.state == Unchanged && len(changes(context.Background(), s.schema, entity, e.snapshot)) > 0 {
		return Modified, true
	}
	return e.state, true
}

// Find returns the entity with the given primary key, preferring the
// tracked instance. It returns gorm.ErrRecordNotFound, wrapped, when no row
// matches.
func (s *Set[T]) Find(ctx context.Context, key any) (*T, error) {
	if tracked, ok := s.byKey[key]; ok {
		return tracked, nil
	}
	if s.schema.PrioritizedPrimaryField == nil {
		return nil, &Error{Op: "find " + s.schema.Table, Kind: ErrStore, Err: fmt.Errorf("%s has no primary key", s.schema.Name)}
	}
	return s.Where(Eq(s.schema.PrioritizedPrimaryField.Name, key)).First(ctx)
}

// Query starts an unfiltered query.
func (s *Set[T]) Query() *Query[T] {
	return &Query[T]{set: s}
}

// Where starts a query filtered by p.
func (s *Set[T]) Where(p Predicate) *Query[T] {
	return s.Query().Where(p)
}

// resolve swaps a freshly scanned row for the tracked instance with the same
// key, or starts tracking it. Included relations are copied onto the tracked
// instance.
func (s *Set[T]) resolve(ctx context.Context, fresh *T, includes []string) *T {
	key, zero := primaryKey(ctx, s.schema, fresh)
	if zero {
		return fresh
	}

	tracked, ok := s.byKey[key]
	if !ok {
		s.track(fresh, Unchanged)
		return fresh
	}

	dst, src := elem(tracked), elem(fresh)
	for _, name := range includes {
		if rel, ok := s.schema.Relationships.Relations[name]; ok {
			rel.Field.ReflectValueOf(ctx, dst).Set(rel.Field.ReflectValueOf(ctx, src))
		}
	}
	return tracked
}
