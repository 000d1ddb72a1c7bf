package models

import (
	"github.com/shopspring/decimal"
)

type DishIngredient struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Description   string          `gorm:"size:100;not null" json:"description"`
	UnitOfMeasure string          `gorm:"size:50;not null" json:"unit_of_measure"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,3);not null" json:"amount"`

	// DishID is filled from Dish on insert when only the reference is set.
	DishID uint  `gorm:"not null;index" json:"dish_id"`
	Dish   *Dish `gorm:"foreignKey:DishID" json:"-"`
}

func (DishIngredient) TableName() string {
	return "dish_ingredients"
}

func (i *DishIngredient) Constraints() []FieldConstraint {
	return []FieldConstraint{
		{Field: "Description", Column: "description", MaxLength: 100, Value: i.Description},
		{Field: "UnitOfMeasure", Column: "unit_of_measure", MaxLength: 50, Value: i.UnitOfMeasure},
		{Field: "Dish", Column: "dish_id", Required: true, Value: i.owner()},
	}
}

func (i *DishIngredient) owner() any {
	switch {
	case i.DishID != 0:
		return i.DishID
	case i.Dish != nil:
		return i.Dish
	default:
		return nil
	}
}
