package mock

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cookbook/internal/config"
	"cookbook/internal/db"
	applog "cookbook/internal/log"
	"cookbook/models"
)

var (
	sequence atomic.Int64
	seedData = seed
)

// Open returns a fresh, empty in-memory sqlite database with the cookbook
// schema. Every call gets its own database.
func Open(ctx context.Context) (*gorm.DB, error) {
	name := fmt.Sprintf("file:cookbook-mock-%d?mode=memory&cache=shared", sequence.Add(1))
	applog.Debug(ctx, "initialising mock database", "dsn", name)

	// One connection keeps the shared-cache database free of table locks.
	database, err := db.Open(sqlite.Open(db.SQLiteDSN(name)), config.DatabaseConfig{MaxOpenConns: 1},
		db.WithLogger(logger.Default.LogMode(logger.Silent)),
		db.WithPreparedStatements(false),
	)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, database, config.DriverSQLite); err != nil {
		_ = db.Close(database)
		return nil, err
	}

	return database, nil
}

// New returns an in-memory sqlite database seeded with a few dishes.
func New(ctx context.Context) (*gorm.DB, error) {
	database, err := Open(ctx)
	if err != nil {
		return nil, err
	}

	if err := seedData(ctx, database); err != nil {
		_ = db.Close(database)
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return database, nil
}

func ptr[T any](v T) *T {
	return &v
}

func seed(ctx context.Context, database *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	dishes := []*models.Dish{
		{
			Title: "Buttermilk Pancakes",
			Notes: ptr("Rest the batter for ten minutes."),
			Stars: ptr(5),
			Ingredients: []models.DishIngredient{
				{Description: "Flour", UnitOfMeasure: "g", Amount: decimal.RequireFromString("250")},
				{Description: "Buttermilk", UnitOfMeasure: "ml", Amount: decimal.RequireFromString("300")},
				{Description: "Baking powder", UnitOfMeasure: "tsp", Amount: decimal.RequireFromString("1.5")},
			},
		},
		{
			Title: "Tomato Soup",
			Stars: ptr(3),
			Ingredients: []models.DishIngredient{
				{Description: "Tomatoes", UnitOfMeasure: "kg", Amount: decimal.RequireFromString("0.8")},
				{Description: "Vegetable stock", UnitOfMeasure: "l", Amount: decimal.RequireFromString("0.5")},
			},
		},
		{
			Title: "Green Salad",
			Notes: ptr("Dress just before serving."),
		},
	}

	for _, dish := range dishes {
		if err := database.WithContext(ctx).Create(dish).Error; err != nil {
			return err
		}
	}

	applog.Debug(ctx, "mock database seeded", "dishes", len(dishes))
	return nil
}
