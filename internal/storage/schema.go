package storage

const schema = `
-- The 'questions' table stores every question/answer pair in the bank.
CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL DEFAULT '',
    answer TEXT NOT NULL DEFAULT '',
    show_in_review INTEGER DEFAULT 1,
    fingerprint TEXT
);

-- Scalar values: the last-modified marker, persisted review state, preferences.
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- The 'sources' table tracks where synced questions come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME
);
`

// questionsTableV2 is used when a legacy integer-keyed table is rebuilt.
const questionsTableV2 = `
CREATE TABLE questions_v2 (
    id TEXT PRIMARY KEY,
    question TEXT NOT NULL DEFAULT '',
    answer TEXT NOT NULL DEFAULT '',
    show_in_review INTEGER DEFAULT 1,
    fingerprint TEXT
);
`

const (
	metaLastModified = "last_modified"
	metaCreatedAt    = "created_at"
	metaSession      = "review_session"
	metaPrefPrefix   = "pref."
)
