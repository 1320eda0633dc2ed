package database

import (
	"fmt"

	"gorm.io/gorm"
)

// constraintStatements back the application checks with the database. They
// use Postgres features (btree_gist, partial exclusion) and are skipped on
// other dialects.
var constraintStatements = []struct {
	name string
	sql  string
}{
	{"btree_gist", `CREATE EXTENSION IF NOT EXISTS btree_gist`},
	{"bookings_no_overlap", `
		DO $$ BEGIN
			ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
			EXCLUDE USING gist (
				space_id WITH =,
				tstzrange(start_date, end_date, '[]') WITH &&
			) WHERE (status NOT IN ('CANCELLED', 'REJECTED'));
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`},
	{"bookings_amounts", `
		DO $$ BEGIN
			ALTER TABLE bookings ADD CONSTRAINT bookings_amounts CHECK (
				subtotal = rental_cost + installation_fee
				AND total = subtotal + platform_fee + processor_fee
				AND deposit_amount + balance_amount = total
				AND end_date >= start_date
			);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`},
	{"payouts_amounts", `
		DO $$ BEGIN
			ALTER TABLE payouts ADD CONSTRAINT payouts_amounts CHECK (
				amount >= 0 AND paid_amount >= 0 AND paid_amount <= amount
			);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`},
	{"refunds_positive", `
		DO $$ BEGIN
			ALTER TABLE refunds ADD CONSTRAINT refunds_positive CHECK (amount > 0);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`},
	{"idx_jobs_due", `
		CREATE INDEX IF NOT EXISTS idx_scheduled_jobs_due
		ON scheduled_jobs (due_at) WHERE status = 'PENDING'`},
}

// MigrateConstraints adds critical database constraints for concurrency control
func MigrateConstraints(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, stmt := range constraintStatements {
		if err := db.Exec(stmt.sql).Error; err != nil {
			return fmt.Errorf("constraint %s: %w", stmt.name, err)
		}
	}
	return nil
}
