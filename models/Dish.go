package models

// Dish is a recipe entry that owns its ingredient lines.
type Dish struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Title       string           `gorm:"size:100;not null" json:"title"`
	Notes       *string          `gorm:"size:1000" json:"notes,omitempty"`
	Stars       *int             `json:"stars,omitempty"`
	Ingredients []DishIngredient `gorm:"foreignKey:DishID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"ingredients,omitempty"`
}

func (Dish) TableName() string {
	return "dishes"
}

func (d *Dish) Constraints() []FieldConstraint {
	return []FieldConstraint{
		{Field: "Title", Column: "title", MaxLength: 100, Required: true, Value: d.Title},
		{Field: "Notes", Column: "notes", MaxLength: 1000, Value: d.Notes},
	}
}
