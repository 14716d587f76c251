package store

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS models (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		file_uri VARCHAR(500) NOT NULL,
		stl_file_uri VARCHAR(500),
		preview_image_uri VARCHAR(500),
		status VARCHAR(50) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		model_id UUID NOT NULL REFERENCES models(id) ON DELETE CASCADE,
		job_type VARCHAR(50) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'pending',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_model_id ON jobs(model_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at)`,
}

// Timestamps are unix nanoseconds so ordering survives rapid inserts.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		file_uri TEXT NOT NULL,
		stl_file_uri TEXT,
		preview_image_uri TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_model_id ON jobs(model_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at)`,
}
