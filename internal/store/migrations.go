package store

import (
	"database/sql"
	"fmt"
)

// migration is one linear schema step. Applied migrations are tracked via
// PRAGMA user_version, per spec §4.1.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE channels (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				type TEXT NOT NULL,
				base_url TEXT,
				api_key TEXT,
				models TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				weight REAL NOT NULL DEFAULT 1,
				status TEXT NOT NULL DEFAULT 'enabled',
				transformers TEXT,
				request_count INTEGER NOT NULL DEFAULT 0,
				success_count INTEGER NOT NULL DEFAULT 0,
				failure_count INTEGER NOT NULL DEFAULT 0,
				consecutive_failures INTEGER NOT NULL DEFAULT 0,
				last_failure_time INTEGER,
				circuit_breaker_until INTEGER,
				rate_limited_until INTEGER,
				last_used_at INTEGER,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE requests (
				id TEXT PRIMARY KEY,
				channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
				model TEXT,
				method TEXT,
				path TEXT,
				status_code INTEGER,
				latency_ms INTEGER,
				input_tokens INTEGER DEFAULT 0,
				output_tokens INTEGER DEFAULT 0,
				cached_tokens INTEGER DEFAULT 0,
				success INTEGER NOT NULL,
				error TEXT,
				timestamp INTEGER NOT NULL,
				trace_id TEXT
			)`,
			`CREATE INDEX idx_requests_channel_id ON requests(channel_id)`,
			`CREATE INDEX idx_requests_timestamp ON requests(timestamp)`,
			`CREATE TABLE routing_rules (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				condition TEXT NOT NULL,
				target_channel TEXT NOT NULL,
				target_model TEXT,
				priority INTEGER NOT NULL DEFAULT 0,
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE tee_destinations (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				url TEXT,
				method TEXT,
				headers TEXT,
				file_path TEXT,
				custom_handler TEXT,
				filter TEXT,
				retries INTEGER NOT NULL DEFAULT 0,
				timeout_ms INTEGER NOT NULL DEFAULT 5000,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE TABLE oauth_sessions (
				id TEXT PRIMARY KEY,
				channel_id TEXT,
				provider TEXT NOT NULL,
				access_token TEXT NOT NULL,
				refresh_token TEXT,
				expires_at INTEGER NOT NULL,
				scopes TEXT,
				user_info TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
		},
	},
}

func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&current); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return err
			}
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, m.version)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
