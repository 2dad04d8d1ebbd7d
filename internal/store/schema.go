package store

const schemaChecks = `
CREATE TABLE IF NOT EXISTS checks (
	id             TEXT NOT NULL PRIMARY KEY,
	owner_user_id  TEXT NOT NULL,
	url            TEXT NOT NULL,
	method         TEXT NOT NULL,
	headers_json   TEXT NOT NULL DEFAULT '[]',
	body_b64       TEXT NOT NULL DEFAULT '',
	expect_status  INTEGER NOT NULL,
	timeout_secs   INTEGER NOT NULL,
	freq_secs      INTEGER NOT NULL,
	regions_csv    TEXT NOT NULL,
	enabled        INTEGER NOT NULL,
	created_at     INTEGER NOT NULL
)`

const schemaHeartbeats = `
CREATE TABLE IF NOT EXISTS heartbeats (
	node_id            TEXT NOT NULL PRIMARY KEY,
	region             TEXT NOT NULL,
	last_seen_micros   INTEGER NOT NULL,
	bucket_version     INTEGER NOT NULL,
	buckets_count      INTEGER NOT NULL,
	replication_factor INTEGER NOT NULL
)`

// results is append-only and keyed so that re-delivery after a retry never
// duplicates a row: the natural key is (check_id, region, scheduled_at).
const schemaResults = `
CREATE TABLE IF NOT EXISTS results (
	check_id             TEXT NOT NULL,
	region               TEXT NOT NULL,
	time_bucket          INTEGER NOT NULL,
	scheduled_at_micros  INTEGER NOT NULL,
	outcome              TEXT NOT NULL,
	response_time_micros INTEGER NOT NULL,
	observed_status      INTEGER,
	executor_node_id     TEXT NOT NULL,
	PRIMARY KEY (check_id, region, time_bucket, scheduled_at_micros)
)`
