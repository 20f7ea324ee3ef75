package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/memberbill/memberbill/internal/logger"
)

// Migration is a single versioned schema change
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in application order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and auths tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(50) PRIMARY KEY,
					email VARCHAR(255) NOT NULL,
					tenant_id VARCHAR(50) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'published',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by VARCHAR(50) NOT NULL DEFAULT '',
					updated_by VARCHAR(50) NOT NULL DEFAULT '',
					UNIQUE (tenant_id, email)
				);

				CREATE TABLE IF NOT EXISTS auths (
					user_id VARCHAR(50) PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
					provider VARCHAR(50) NOT NULL,
					token TEXT NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'published',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create subscribers table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscribers (
					id VARCHAR(50) PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					email VARCHAR(255) NOT NULL DEFAULT '',
					is_member BOOLEAN NOT NULL DEFAULT FALSE,
					membership_status VARCHAR(50) NOT NULL DEFAULT 'none',
					member_since TIMESTAMPTZ,
					currency VARCHAR(10) NOT NULL,
					has_outstanding_balance BOOLEAN NOT NULL DEFAULT FALSE,
					address_line1 VARCHAR(255) NOT NULL DEFAULT '',
					address_line2 VARCHAR(255) NOT NULL DEFAULT '',
					address_city VARCHAR(255) NOT NULL DEFAULT '',
					address_postal_code VARCHAR(50) NOT NULL DEFAULT '',
					address_country VARCHAR(100) NOT NULL DEFAULT '',
					metadata JSONB NOT NULL DEFAULT '{}',
					environment_id VARCHAR(50) NOT NULL DEFAULT '',
					tenant_id VARCHAR(50) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'published',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by VARCHAR(50) NOT NULL DEFAULT '',
					updated_by VARCHAR(50) NOT NULL DEFAULT ''
				);

				CREATE UNIQUE INDEX idx_subscribers_external_id
					ON subscribers (tenant_id, environment_id, external_id)
					WHERE status != 'deleted';
				CREATE INDEX idx_subscribers_tenant_env ON subscribers (tenant_id, environment_id);
				CREATE INDEX idx_subscribers_email ON subscribers (tenant_id, email);
			`,
		},
		{
			Version:     3,
			Description: "Create products table",
			SQL: `
				CREATE TABLE IF NOT EXISTS products (
					id VARCHAR(50) PRIMARY KEY,
					lookup_key VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					product_type VARCHAR(50) NOT NULL,
					category VARCHAR(100) NOT NULL DEFAULT '',
					list_price NUMERIC(20,8) NOT NULL DEFAULT 0,
					member_price NUMERIC(20,8) NOT NULL DEFAULT 0,
					setup_fee NUMERIC(20,8) NOT NULL DEFAULT 0,
					additional_member_discount_pct NUMERIC(20,8) NOT NULL DEFAULT 0,
					tax_rate_pct NUMERIC(20,8) NOT NULL DEFAULT 0,
					currency VARCHAR(10) NOT NULL,
					billing_period VARCHAR(20) NOT NULL,
					billing_period_count INT NOT NULL DEFAULT 1,
					revenue_recognition VARCHAR(20) NOT NULL,
					grace_period_days INT NOT NULL DEFAULT 0,
					auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
					reminder_schedule VARCHAR(100) NOT NULL DEFAULT '',
					metadata JSONB NOT NULL DEFAULT '{}',
					environment_id VARCHAR(50) NOT NULL DEFAULT '',
					tenant_id VARCHAR(50) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'published',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by VARCHAR(50) NOT NULL DEFAULT '',
					updated_by VARCHAR(50) NOT NULL DEFAULT ''
				);

				CREATE UNIQUE INDEX idx_products_lookup_key
					ON products (tenant_id, environment_id, lookup_key)
					WHERE status != 'deleted';
				CREATE INDEX idx_products_tenant_env ON products (tenant_id, environment_id);
				CREATE INDEX idx_products_category ON products (tenant_id, category);
			`,
		},
		{
			Version:     4,
			Description: "Create subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id VARCHAR(50) PRIMARY KEY,
					subscriber_id VARCHAR(50) NOT NULL REFERENCES subscribers(id),
					product_id VARCHAR(50) NOT NULL REFERENCES products(id),
					state VARCHAR(50) NOT NULL,
					quantity NUMERIC(20,8) NOT NULL DEFAULT 1,
					current_price NUMERIC(20,8) NOT NULL DEFAULT 0,
					currency VARCHAR(10) NOT NULL,
					billing_period VARCHAR(20) NOT NULL,
					billing_period_count INT NOT NULL DEFAULT 1,
					start_date TIMESTAMPTZ NOT NULL,
					current_period_start TIMESTAMPTZ NOT NULL,
					end_date TIMESTAMPTZ NOT NULL,
					next_billing_date TIMESTAMPTZ NOT NULL,
					cancelled_at TIMESTAMPTZ,
					auto_renew BOOLEAN NOT NULL DEFAULT FALSE,
					additional_discount_pct NUMERIC(20,8) NOT NULL DEFAULT 0,
					reminder_schedule VARCHAR(100) NOT NULL DEFAULT '',
					grace_period_days INT,
					metadata JSONB NOT NULL DEFAULT '{}',
					environment_id VARCHAR(50) NOT NULL DEFAULT '',
					tenant_id VARCHAR(50) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'published',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by VARCHAR(50) NOT NULL DEFAULT '',
					updated_by VARCHAR(50) NOT NULL DEFAULT ''
				);

				CREATE INDEX idx_subscriptions_tenant_env ON subscriptions (tenant_id, environment_id);
				CREATE INDEX idx_subscriptions_subscriber ON subscriptions (subscriber_id);
				CREATE INDEX idx_subscriptions_product ON subscriptions (product_id);
				CREATE INDEX idx_subscriptions_state_next_billing ON subscriptions (state, next_billing_date);
			`,
		},
		{
			Version:     5,
			Description: "Create billing_cycles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS billing_cycles (
					id VARCHAR(50) PRIMARY KEY,
					short_id VARCHAR(50) NOT NULL,
					subscription_id VARCHAR(50) NOT NULL REFERENCES subscriptions(id),
					billing_type VARCHAR(50) NOT NULL,
					state VARCHAR(50) NOT NULL,
					billing_date TIMESTAMPTZ NOT NULL,
					period_start TIMESTAMPTZ NOT NULL,
					period_end TIMESTAMPTZ NOT NULL,
					currency VARCHAR(10) NOT NULL,
					quantity NUMERIC(20,8) NOT NULL DEFAULT 1,
					base_amount NUMERIC(20,8) NOT NULL DEFAULT 0,
					member_discount NUMERIC(20,8) NOT NULL DEFAULT 0,
					additional_discount NUMERIC(20,8) NOT NULL DEFAULT 0,
					setup_fee NUMERIC(20,8) NOT NULL DEFAULT 0,
					tax_amount NUMERIC(20,8) NOT NULL DEFAULT 0,
					proration_adjustment NUMERIC(20,8) NOT NULL DEFAULT 0,
					total_amount NUMERIC(20,8) NOT NULL DEFAULT 0,
					proration_factor NUMERIC(20,8) NOT NULL DEFAULT 1,
					immediate_revenue NUMERIC(20,8) NOT NULL DEFAULT 0,
					deferred_revenue NUMERIC(20,8) NOT NULL DEFAULT 0,
					requires_manual_review BOOLEAN NOT NULL DEFAULT FALSE,
					review_reason VARCHAR(255) NOT NULL DEFAULT '',
					amounts_calculated_at TIMESTAMPTZ,
					invoice_ref VARCHAR(255) NOT NULL DEFAULT '',
					payment_ref VARCHAR(255) NOT NULL DEFAULT '',
					paid_at TIMESTAMPTZ,
					retry_count INT NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					failed_at TIMESTAMPTZ,
					processed_at TIMESTAMPTZ,
					metadata JSONB NOT NULL DEFAULT '{}',
					environment_id VARCHAR(50) NOT NULL DEFAULT '',
					tenant_id VARCHAR(50) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'published',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by VARCHAR(50) NOT NULL DEFAULT '',
					updated_by VARCHAR(50) NOT NULL DEFAULT ''
				);

				CREATE UNIQUE INDEX idx_billing_cycles_short_id
					ON billing_cycles (tenant_id, environment_id, short_id);
				CREATE INDEX idx_billing_cycles_tenant_env ON billing_cycles (tenant_id, environment_id);
				CREATE INDEX idx_billing_cycles_subscription ON billing_cycles (subscription_id);
				CREATE INDEX idx_billing_cycles_state_billing_date ON billing_cycles (state, billing_date);
			`,
		},
		{
			Version:     6,
			Description: "Create renewals table",
			SQL: `
				CREATE TABLE IF NOT EXISTS renewals (
					id VARCHAR(50) PRIMARY KEY,
					short_id VARCHAR(50) NOT NULL,
					subscription_id VARCHAR(50) NOT NULL REFERENCES subscriptions(id),
					state VARCHAR(50) NOT NULL,
					current_period_end TIMESTAMPTZ NOT NULL,
					due_date TIMESTAMPTZ NOT NULL,
					grace_period_end TIMESTAMPTZ NOT NULL,
					next_renewal_due TIMESTAMPTZ NOT NULL,
					renewal_count INT NOT NULL DEFAULT 0,
					previous_renewal_id VARCHAR(50) NOT NULL DEFAULT '',
					billing_cycle_id VARCHAR(50) NOT NULL DEFAULT '',
					currency VARCHAR(10) NOT NULL,
					current_price NUMERIC(20,8) NOT NULL DEFAULT 0,
					renewal_price NUMERIC(20,8) NOT NULL DEFAULT 0,
					member_discount NUMERIC(20,8) NOT NULL DEFAULT 0,
					price_increase_amount NUMERIC(20,8) NOT NULL DEFAULT 0,
					price_increase_pct NUMERIC(20,8) NOT NULL DEFAULT 0,
					price_increase_warning BOOLEAN NOT NULL DEFAULT FALSE,
					reminder_count INT NOT NULL DEFAULT 0,
					last_reminder_at TIMESTAMPTZ,
					next_reminder_at TIMESTAMPTZ,
					process_method VARCHAR(50) NOT NULL DEFAULT '',
					processed_at TIMESTAMPTZ,
					last_error TEXT NOT NULL DEFAULT '',
					metadata JSONB NOT NULL DEFAULT '{}',
					environment_id VARCHAR(50) NOT NULL DEFAULT '',
					tenant_id VARCHAR(50) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'published',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_by VARCHAR(50) NOT NULL DEFAULT '',
					updated_by VARCHAR(50) NOT NULL DEFAULT ''
				);

				CREATE UNIQUE INDEX idx_renewals_short_id
					ON renewals (tenant_id, environment_id, short_id);
				CREATE INDEX idx_renewals_tenant_env ON renewals (tenant_id, environment_id);
				CREATE INDEX idx_renewals_subscription ON renewals (subscription_id);
				CREATE INDEX idx_renewals_state_due_date ON renewals (state, due_date);
				CREATE INDEX idx_renewals_state_next_reminder ON renewals (state, next_reminder_at);
				CREATE INDEX idx_renewals_billing_cycle ON renewals (billing_cycle_id);
			`,
		},
		{
			Version:     7,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id VARCHAR(50) PRIMARY KEY,
					entity_type VARCHAR(50) NOT NULL,
					entity_id VARCHAR(50) NOT NULL,
					event VARCHAR(100) NOT NULL,
					from_state VARCHAR(50) NOT NULL DEFAULT '',
					to_state VARCHAR(50) NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					actor_id VARCHAR(50) NOT NULL DEFAULT '',
					tenant_id VARCHAR(50) NOT NULL,
					environment_id VARCHAR(50) NOT NULL DEFAULT '',
					timestamp TIMESTAMPTZ NOT NULL,
					details JSONB NOT NULL DEFAULT '{}'
				);

				CREATE INDEX idx_audit_logs_entity ON audit_logs (tenant_id, entity_type, entity_id, timestamp);
				CREATE INDEX idx_audit_logs_timestamp ON audit_logs (tenant_id, timestamp);
			`,
		},
	}
}

// RunMigrations applies all pending migrations, tracking applied versions in
// the schema_migrations table. Each migration runs in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, log *logger.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		log.Infow("running migration",
			"version", migration.Version,
			"description", migration.Description,
		)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Infow("migration completed", "version", migration.Version)
	}

	return nil
}
