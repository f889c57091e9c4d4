package infra

import (
	"fmt"

	"tillpoint/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies the idempotent SQL patches that GORM
// cannot express (partial unique indexes, the sequences table).
//
// TranslateError is required: the repositories detect duplicate-key violations
// via gorm.ErrDuplicatedKey, which only fires when the driver errors are
// translated.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

// RunMigrations creates / updates the schema. Also used by integration tests.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.Sale{},
		&model.SaleItem{},
		&model.StockMovement{},
		&model.Register{},
		&model.Withdrawal{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	return applySchemaPatches(db)
}

// applySchemaPatches runs idempotent DDL that AutoMigrate cannot express.
// Each statement uses IF NOT EXISTS semantics so re-running is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// Named counters backing sale-number generation. The upsert in the
		// sequence repository needs the PRIMARY KEY on name for ON CONFLICT.
		{"create sequences table", `
CREATE TABLE IF NOT EXISTS sequences (
    name  VARCHAR(50) PRIMARY KEY,
    value BIGINT NOT NULL
)`},
		// One open register per user, enforced at the database level. The
		// application check in the service is only for the friendly message.
		{"partial unique index: one open register per user", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uni_registers_open_user') THEN
    CREATE UNIQUE INDEX uni_registers_open_user
        ON registers (opened_by)
        WHERE status = 'open';
  END IF;
END $$`},
		// Same guarantee per device; NULL device_id rows are unconstrained.
		{"partial unique index: one open register per device", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'uni_registers_open_device') THEN
    CREATE UNIQUE INDEX uni_registers_open_device
        ON registers (device_id)
        WHERE status = 'open' AND device_id IS NOT NULL;
  END IF;
END $$`},
		// Serves the hourly staleness sweep without scanning closed sessions.
		{"partial index: open registers by opened_at", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_registers_open_opened_at') THEN
    CREATE INDEX idx_registers_open_opened_at
        ON registers (opened_at)
        WHERE status = 'open';
  END IF;
END $$`},
		// Serves the expected-cash aggregation (cashier + window + method).
		{"index: sales by cashier and created_at", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_sales_cashier_created') THEN
    CREATE INDEX idx_sales_cashier_created
        ON sales (cashier_id, created_at);
  END IF;
END $$`},
	}

	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
