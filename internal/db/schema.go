package db

import "context"

// Table DDL is kept explicit here rather than derived from the Go structs.
// Integrity rules that must never be silently truncated (trigger hour range,
// one step row per participant per day) live in the schema itself.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		active_tracker TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		tracker_name TEXT NOT NULL,
		tracker_user_id TEXT NOT NULL,
		token JSONB NOT NULL,
		PRIMARY KEY (user_id, tracker_name)
	)`,
	`CREATE TABLE IF NOT EXISTS treks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		is_active BOOLEAN NOT NULL DEFAULT false,
		progress_at_hour SMALLINT NOT NULL DEFAULT 12
			CHECK (progress_at_hour BETWEEN 0 AND 23),
		progress_at_tz TEXT NOT NULL DEFAULT 'CET',
		output_to TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS legs (
		id TEXT PRIMARY KEY,
		trek_id TEXT NOT NULL REFERENCES treks(id) ON DELETE CASCADE,
		added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		added_by TEXT NOT NULL REFERENCES users(id),
		is_finished BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS waypoints (
		id TEXT PRIMARY KEY,
		trek_id TEXT NOT NULL,
		leg_id TEXT NOT NULL REFERENCES legs(id) ON DELETE CASCADE,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		distance DOUBLE PRECISION NOT NULL CHECK (distance >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS waypoints_leg_idx ON waypoints (trek_id, leg_id, distance)`,
	`CREATE TABLE IF NOT EXISTS trek_users (
		trek_id TEXT NOT NULL REFERENCES treks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		color TEXT NOT NULL,
		PRIMARY KEY (trek_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		trek_id TEXT NOT NULL REFERENCES treks(id) ON DELETE CASCADE,
		leg_id TEXT NOT NULL,
		added_at DATE NOT NULL,
		latest_waypoint TEXT NOT NULL,
		lat DOUBLE PRECISION NOT NULL,
		lon DOUBLE PRECISION NOT NULL,
		distance DOUBLE PRECISION NOT NULL,
		address TEXT,
		country TEXT,
		is_new_country BOOLEAN NOT NULL DEFAULT false,
		is_last_in_leg BOOLEAN NOT NULL DEFAULT false,
		poi TEXT,
		photo_url TEXT,
		gmap_url TEXT,
		traversal_map_url TEXT,
		achievements TEXT[],
		factoid TEXT,
		PRIMARY KEY (trek_id, leg_id, added_at)
	)`,
	`CREATE TABLE IF NOT EXISTS steps (
		trek_id TEXT NOT NULL REFERENCES treks(id) ON DELETE CASCADE,
		leg_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		taken_at DATE NOT NULL,
		amount INTEGER NOT NULL CHECK (amount >= 0),
		PRIMARY KEY (trek_id, leg_id, user_id, taken_at)
	)`,
	`CREATE TABLE IF NOT EXISTS achievements (
		id TEXT PRIMARY KEY,
		trek_id TEXT NOT NULL REFERENCES treks(id) ON DELETE CASCADE,
		achievement_type TEXT NOT NULL,
		is_for_trek BOOLEAN NOT NULL,
		user_id TEXT NOT NULL,
		added_at DATE NOT NULL,
		amount INTEGER NOT NULL,
		old_user_id TEXT NOT NULL,
		old_added_at DATE NOT NULL,
		old_amount INTEGER NOT NULL,
		description TEXT NOT NULL,
		unit TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS storage_objects (
		id TEXT PRIMARY KEY,
		trek_id TEXT NOT NULL,
		leg_id TEXT NOT NULL,
		object_key TEXT UNIQUE NOT NULL,
		url TEXT NOT NULL,
		kind TEXT NOT NULL,
		data BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
