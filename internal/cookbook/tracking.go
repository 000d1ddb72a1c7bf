package cookbook

import (
	"context"
	"reflect"

	"gorm.io/gorm/schema"
)

func elem(entity any) reflect.Value {
	return reflect.Indirect(reflect.ValueOf(entity))
}

func primaryKey(ctx context.Context, s *schema.Schema, entity any) (any, bool) {
	field := s.PrioritizedPrimaryField
	if field == nil {
		return nil, true
	}
	return field.ValueOf(ctx, elem(entity))
}

// snapshotOf copies every non-key column of entity. Pointers are
// dereferenced so later writes through them show up as changes.
func snapshotOf(ctx context.Context, s *schema.Schema, entity any) map[string]any {
	rv := elem(entity)
	snap := make(map[string]any, len(s.Fields))
	for _, field := range s.Fields {
		if field.DBName == "" || field.PrimaryKey {
			continue
		}
		snap[field.DBName] = plain(field.ReflectValueOf(ctx, rv))
	}
	return snap
}

func plain(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		return v.Elem().Interface()
	}
	return v.Interface()
}

// changes returns the columns whose current value differs from snap.
func changes(ctx context.Context, s *schema.Schema, entity any, snap map[string]any) map[string]any {
	if snap == nil {
		return nil
	}

	var diff map[string]any
	for column, value := range snapshotOf(ctx, s, entity) {
		if reflect.DeepEqual(value, snap[column]) {
			continue
		}
		if diff == nil {
			diff = make(map[string]any)
		}
		diff[column] = value
	}
	return diff
}

// references reports whether entity holds a belongs-to foreign key pointing
// at the parent row with the given key.
func references(ctx context.Context, s *schema.Schema, entity any, parent *schema.Schema, key any) bool {
	rv := elem(entity)
	for _, rel := range s.Relationships.BelongsTo {
		if rel.FieldSchema == nil || rel.FieldSchema.Table != parent.Table {
			continue
		}
		for _, ref := range rel.References {
			if ref.OwnPrimaryKey || ref.ForeignKey == nil {
				continue
			}
			if value, zero := ref.ForeignKey.ValueOf(ctx, rv); !zero && reflect.DeepEqual(value, key) {
				return true
			}
		}
	}
	return false
}

type keyReset struct {
	schema *schema.Schema
	entity any
}

func (r keyReset) reset(ctx context.Context) {
	field := r.schema.PrioritizedPrimaryField
	if field == nil {
		return
	}
	_ = field.Set(ctx, elem(r.entity), reflect.Zero(field.FieldType).Interface())
}

// unsavedKeys lists entity and its has-many children that have no key yet,
// so a failed insert can hand them back unsaved.
func unsavedKeys(ctx context.Context, s *schema.Schema, entity any) []keyReset {
	out := []keyReset{{schema: s, entity: entity}}

	rv := elem(entity)
	for _, rel := range s.Relationships.HasMany {
		items := rel.Field.ReflectValueOf(ctx, rv)
		if items.Kind() != reflect.Slice {
			continue
		}
		for i := 0; i < items.Len(); i++ {
			item := items.Index(i)
			if item.Kind() == reflect.Pointer {
				if item.IsNil() {
					continue
				}
			} else {
				item = item.Addr()
			}
			child := item.Interface()
			if _, zero := primaryKey(ctx, rel.FieldSchema, child); zero {
				out = append(out, keyReset{schema: rel.FieldSchema, entity: child})
			}
		}
	}
	return out
}
