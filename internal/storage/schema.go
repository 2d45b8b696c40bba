package storage

// Times are stored as UTC unix milliseconds so range queries compare numerically.
const schema = `
-- One row per vocabulary sense. (normalized_term, digest) is the fingerprint.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    term TEXT NOT NULL,
    normalized_term TEXT NOT NULL,
    translation TEXT NOT NULL DEFAULT '',
    digest TEXT NOT NULL DEFAULT '',
    phonetic TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]', -- JSON array
    source TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    UNIQUE(normalized_term, digest)
);
CREATE INDEX IF NOT EXISTS idx_cards_normalized_term ON cards(normalized_term);

-- Scheduling state, one-to-one with cards.
CREATE TABLE IF NOT EXISTS review_states (
    card_id TEXT PRIMARY KEY,
    ease REAL NOT NULL,
    interval_days INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    last_review INTEGER,
    next_review INTEGER NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    correct INTEGER NOT NULL DEFAULT 0,
    avg_latency REAL NOT NULL DEFAULT 0,

    FOREIGN KEY(card_id) REFERENCES cards(id)
);
CREATE INDEX IF NOT EXISTS idx_review_states_next_review ON review_states(next_review);

-- Append-only record of graded attempts.
CREATE TABLE IF NOT EXISTS log_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at INTEGER NOT NULL,
    card_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    grade TEXT NOT NULL,
    latency REAL NOT NULL DEFAULT 0,
    correct INTEGER NOT NULL,
    context TEXT NOT NULL DEFAULT '',

    FOREIGN KEY(card_id) REFERENCES cards(id)
);
CREATE INDEX IF NOT EXISTS idx_log_entries_at ON log_entries(at);

-- Append-only summary of committed import batches.
CREATE TABLE IF NOT EXISTS import_batches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    at INTEGER NOT NULL,
    new_count INTEGER NOT NULL,
    updated_count INTEGER NOT NULL,
    conflict_count INTEGER NOT NULL,
    skipped_count INTEGER NOT NULL,
    content_hash TEXT,
    notes TEXT NOT NULL DEFAULT ''
);

-- Registered import sources, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned INTEGER
);
`
