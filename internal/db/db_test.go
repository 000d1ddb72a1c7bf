package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cookbook/internal/config"
	"cookbook/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	database, err := Open(sqlite.Open(SQLiteDSN(dsn)), config.DatabaseConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = Close(database) })
	return database
}

func TestInitializeRequiresURL(t *testing.T) {
	t.Parallel()

	db, err := Initialize(config.DatabaseConfig{URL: ""})
	if err == nil {
		t.Fatal("expected error when database URL is empty")
	}
	if db != nil {
		t.Fatal("expected returned db handle to be nil on error")
	}
}

func TestInitializeRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Initialize(config.DatabaseConfig{URL: "Server=.;Database=Cookbook", Driver: "sqlserver"})
	if !errors.Is(err, config.ErrUnsupportedDriver) {
		t.Fatalf("Initialize() error = %v, want ErrUnsupportedDriver", err)
	}
}

func TestInitializePostgresDoesNotConnect(t *testing.T) {
	t.Parallel()

	// Nothing listens on port 1; the failure must wait for the first query.
	database, err := Initialize(config.DatabaseConfig{URL: "postgres://cook@127.0.0.1:1/cookbook?connect_timeout=1"})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { _ = Close(database) })

	var count int64
	if err := database.Model(&models.Dish{}).Count(&count).Error; err == nil {
		t.Fatal("expected query against unreachable server to fail")
	}
}

func TestSQLiteDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"cookbook.db", "cookbook.db?_foreign_keys=1"},
		{"file:x?mode=memory", "file:x?mode=memory&_foreign_keys=1"},
		{"file:x?_fk=0", "file:x?_fk=0"},
	}
	for _, tt := range tests {
		if got := SQLiteDSN(tt.in); got != tt.want {
			t.Fatalf("SQLiteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWithPreparedStatements(t *testing.T) {
	t.Parallel()

	if !GormConfig().PrepareStmt {
		t.Fatal("prepared statements should be on by default")
	}
	if GormConfig(WithPreparedStatements(false)).PrepareStmt {
		t.Fatal("expected prepared statements to be disabled")
	}
}

func TestMigrateAndRollbackWithSQLite(t *testing.T) {
	ctx := context.Background()
	database := openSQLite(t)

	if err := Migrate(ctx, database, config.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"dishes", "dish_ingredients"} {
		if !database.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}

	version, err := SchemaVersion(ctx, database, config.DriverSQLite)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 1 {
		t.Fatalf("schema version = %d, want 1", version)
	}

	dish := models.Dish{Title: "Breakfast Porridge"}
	if err := database.Create(&dish).Error; err != nil {
		t.Fatalf("insert into migrated schema: %v", err)
	}
	if dish.ID == 0 {
		t.Fatal("expected generated id")
	}

	orphan := map[string]any{"description": "Oats", "unit_of_measure": "g", "amount": "80", "dish_id": 9999}
	if err := database.Table("dish_ingredients").Create(orphan).Error; err == nil {
		t.Fatal("expected foreign key violation for orphan ingredient")
	}

	if err := Rollback(ctx, database, config.DriverSQLite); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if database.Migrator().HasTable("dishes") {
		t.Fatal("expected dishes table to be dropped")
	}
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	database := openSQLite(t)
	if err := Migrate(context.Background(), database, "sqlserver"); !errors.Is(err, config.ErrUnsupportedDriver) {
		t.Fatalf("Migrate() error = %v, want ErrUnsupportedDriver", err)
	}
	if err := Migrate(context.Background(), nil, config.DriverSQLite); err == nil {
		t.Fatal("expected error for nil handle")
	}
}

func TestCloseNil(t *testing.T) {
	t.Parallel()

	if err := Close(nil); err != nil {
		t.Fatalf("Close(nil) error = %v", err)
	}
}
