package storage

import (
	"context"
	"database/sql"
)

// migrateV001 creates the bounce tracking tables and seeds the default
// purge exemptions. Every statement is idempotent.
func migrateV001(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		// Timestamps are unix microseconds.
		`CREATE TABLE IF NOT EXISTS bounce_candidates (
			partition  TEXT NOT NULL,
			host       TEXT NOT NULL,
			ts         INTEGER NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (partition, host)
		)`,

		`CREATE TABLE IF NOT EXISTS user_activations (
			partition  TEXT NOT NULL,
			host       TEXT NOT NULL,
			ts         INTEGER NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (partition, host)
		)`,

		`CREATE TABLE IF NOT EXISTS purge_log (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			partition TEXT NOT NULL,
			host      TEXT NOT NULL,
			bounce_ts INTEGER NOT NULL,
			purge_ts  INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS exemptions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_type  TEXT NOT NULL CHECK (rule_type IN ('domain', 'regex')),
			rule_value TEXT NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(rule_type, rule_value)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bounce_candidates_ts ON bounce_candidates(partition, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_user_activations_ts  ON user_activations(partition, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_purge_log_partition  ON purge_log(partition, id)`,
		`CREATE INDEX IF NOT EXISTS idx_exemptions_rule      ON exemptions(rule_type, rule_value)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return seedDefaultExemptions(ctx, tx)
}

// seedDefaultExemptions inserts sites whose redirects are part of sign-in
// and payment flows. INSERT OR IGNORE keeps re-runs safe.
func seedDefaultExemptions(ctx context.Context, tx *sql.Tx) error {
	type rule struct {
		RuleType  string
		RuleValue string
		Reason    string
	}

	defaults := []rule{
		{"domain", "microsoftonline.com", "Identity provider - sign-in redirects"},
		{"domain", "okta.com", "Identity provider - sign-in redirects"},
		{"domain", "auth0.com", "Identity provider - sign-in redirects"},
		{"domain", "onelogin.com", "Identity provider - sign-in redirects"},
		{"domain", "duosecurity.com", "MFA provider - sign-in redirects"},
		{"domain", "login.gov", "Government identity - sign-in redirects"},
		{"domain", "id.me", "Government identity - sign-in redirects"},
		{"domain", "paypal.com", "Payment - checkout redirects"},
		{"domain", "stripe.com", "Payment - checkout redirects"},
		{"domain", "3dsecure.io", "Payment - card authentication redirects"},
		{"regex", `^(.+\.)?okta-emea\.com$`, "Identity provider - regional tenants"},
	}

	const insertSQL = `INSERT OR IGNORE INTO exemptions (rule_type, rule_value, reason, is_default) VALUES (?, ?, ?, 1)`
	for _, r := range defaults {
		if _, err := tx.ExecContext(ctx, insertSQL, r.RuleType, r.RuleValue, r.Reason); err != nil {
			return err
		}
	}
	return nil
}
