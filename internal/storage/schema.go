package storage

// Timestamps are stored as Unix nanoseconds in UTC.
const schema = `
-- The 'cards' table stores every vocabulary flashcard and its Leitner state.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    content_key TEXT NOT NULL UNIQUE,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    box INTEGER NOT NULL DEFAULT 1 CHECK (box BETWEEN 1 AND 5),
    last_reviewed INTEGER,
    next_review INTEGER NOT NULL,
    review_count INTEGER NOT NULL DEFAULT 0,
    category TEXT NOT NULL DEFAULT '',
    entry_id TEXT,
    image_url TEXT,
    location TEXT,
    source_id INTEGER,
    created_at INTEGER NOT NULL,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

CREATE INDEX IF NOT EXISTS idx_cards_next_review ON cards(next_review);
CREATE INDEX IF NOT EXISTS idx_cards_source_id ON cards(source_id);

-- The 'review_logs' table keeps one row per applied review outcome.
CREATE TABLE IF NOT EXISTS review_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    card_id TEXT NOT NULL,
    reviewed_at INTEGER NOT NULL,
    correct INTEGER NOT NULL,
    box_before INTEGER NOT NULL,
    box_after INTEGER NOT NULL,
    next_review INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_review_logs_card_id ON review_logs(card_id);

-- The 'sources' table tracks where imported decks come from: a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned INTEGER
);
`
