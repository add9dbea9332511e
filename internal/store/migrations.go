package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
//
// v1 is the pre-sync schema. v2 adds cloud sync columns; rows that exist
// when it runs become LOCAL_ONLY. v3 adds the timer chain state, persisted
// timers and local notifications. v4 adds the sync lease shared by every
// process that opens the database.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	name            TEXT NOT NULL,
	date            TEXT NOT NULL,
	time            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	recurrence_type TEXT NOT NULL DEFAULT 'NONE'
);

CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
CREATE INDEX IF NOT EXISTS idx_events_recurrence ON events(recurrence_type);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
ALTER TABLE events ADD COLUMN remote_id TEXT;
ALTER TABLE events ADD COLUMN sync_status TEXT NOT NULL DEFAULT 'LOCAL_ONLY';
ALTER TABLE events ADD COLUMN last_modified INTEGER NOT NULL DEFAULT 0;

CREATE UNIQUE INDEX IF NOT EXISTS idx_events_remote_id ON events(remote_id);
CREATE INDEX IF NOT EXISTS idx_events_sync_status ON events(sync_status);

CREATE TABLE IF NOT EXISTS sync_metadata (
	meta_key   TEXT PRIMARY KEY,
	meta_value TEXT NOT NULL
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
ALTER TABLE events ADD COLUMN alarm_state TEXT NOT NULL DEFAULT 'UNSCHEDULED';
ALTER TABLE events ADD COLUMN parent_id INTEGER;

CREATE INDEX IF NOT EXISTS idx_events_alarm_state ON events(alarm_state);
CREATE INDEX IF NOT EXISTS idx_events_parent_id ON events(parent_id);

CREATE TABLE IF NOT EXISTS timers (
	key     TEXT PRIMARY KEY,
	fire_at INTEGER NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_timers_fire_at ON timers(fire_at);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	event_id   INTEGER NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	read       INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
	{
		version: 4,
		sql: `
CREATE TABLE IF NOT EXISTS sync_lease (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	owner      TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);

INSERT INTO schema_version (version) VALUES (4);
`,
	},
}
