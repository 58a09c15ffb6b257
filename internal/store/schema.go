package store

const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	media_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	profile_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	artwork_url TEXT NOT NULL DEFAULT '',
	count INTEGER NOT NULL CHECK (count > 0),
	pending BOOLEAN NOT NULL DEFAULT 1,
	last_planned_at DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One job per media target and profile
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_identity ON jobs(media_id, kind, profile_id);
CREATE INDEX IF NOT EXISTS idx_jobs_profile ON jobs(profile_id);

CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	sort_index INTEGER NOT NULL DEFAULT 0,
	item_id TEXT NOT NULL,
	item_kind TEXT NOT NULL,
	disposition TEXT NOT NULL,
	url TEXT NOT NULL,
	file_name TEXT NOT NULL,

	-- Transfer
	handle TEXT,
	total_bytes INTEGER NOT NULL DEFAULT 0,
	transferred_bytes INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	status_detail TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	last_retry_at DATETIME,

	-- Playback snapshot (JSON)
	playback TEXT NOT NULL DEFAULT '{}',

	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,

	FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_downloads_job_item ON downloads(job_id, item_id, disposition);
CREATE UNIQUE INDEX IF NOT EXISTS idx_downloads_file_name ON downloads(file_name);
CREATE INDEX IF NOT EXISTS idx_downloads_job_id ON downloads(job_id);
CREATE INDEX IF NOT EXISTS idx_downloads_handle ON downloads(handle);

CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	data BLOB,
	expires_at DATETIME
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
