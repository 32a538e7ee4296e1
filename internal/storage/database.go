package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/vocabox/internal/domain"
	"github.com/conorfennell/vocabox/internal/knol"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// ErrNotFound is returned when no row matches the requested id.
var ErrNotFound = errors.New("not found")

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows a single writer; serialising through one connection
	// avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

const cardColumns = `id, front, back, box, last_reviewed, next_review, review_count,
	category, entry_id, image_url, location, source_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (domain.Flashcard, error) {
	var (
		c            domain.Flashcard
		lastReviewed sql.NullInt64
		nextReview   int64
		createdAt    int64
		entryID      sql.NullString
		imageURL     sql.NullString
		location     sql.NullString
		sourceID     sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&c.Front,
		&c.Back,
		&c.Box,
		&lastReviewed,
		&nextReview,
		&c.ReviewCount,
		&c.Category,
		&entryID,
		&imageURL,
		&location,
		&sourceID,
		&createdAt,
	)
	if err != nil {
		return domain.Flashcard{}, err
	}

	c.NextReview = fromNanos(nextReview)
	c.CreatedAt = fromNanos(createdAt)
	if lastReviewed.Valid {
		t := fromNanos(lastReviewed.Int64)
		c.LastReviewed = &t
	}
	if entryID.Valid || imageURL.Valid || location.Valid || sourceID.Valid {
		c.Source = &domain.SourceContext{
			EntryID:  entryID.String,
			ImageURL: imageURL.String,
			Location: location.String,
			SourceID: sourceID.Int64,
		}
	}
	return c, nil
}

// Load returns every stored card, oldest first.
func (db *DB) Load(ctx context.Context) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load cards: %w", err)
	}
	defer rows.Close()

	cards := []domain.Flashcard{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate card rows: %w", err)
	}
	return cards, nil
}

// FindByID retrieves a card by its id.
func (db *DB) FindByID(ctx context.Context, id string) (domain.Flashcard, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE id = ?
	`, id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Flashcard{}, fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Flashcard{}, fmt.Errorf("failed to find card %s: %w", id, err)
	}
	return c, nil
}

// FindByFront retrieves the card whose front text has the same content key.
func (db *DB) FindByFront(ctx context.Context, front string) (domain.Flashcard, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE content_key = ?
	`, knol.ContentKey(front))
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Flashcard{}, fmt.Errorf("card %q: %w", front, ErrNotFound)
	}
	if err != nil {
		return domain.Flashcard{}, fmt.Errorf("failed to find card %q: %w", front, err)
	}
	return c, nil
}

// Save stores a new card. If a card with the same front text already
// exists, nothing is written and the existing card is returned instead.
// The insert and the lookup are a single conflict-free statement pair, so
// concurrent saves of the same text converge on one row.
func (db *DB) Save(ctx context.Context, card domain.Flashcard) (domain.Flashcard, error) {
	src := sourceColumns(card.Source)
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (id, content_key, front, back, box, last_reviewed, next_review,
			review_count, category, entry_id, image_url, location, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_key) DO NOTHING
	`,
		card.ID,
		knol.Hash(card),
		card.Front,
		card.Back,
		card.Box,
		nullableNanos(card.LastReviewed),
		toNanos(card.NextReview),
		card.ReviewCount,
		card.Category,
		src.entryID,
		src.imageURL,
		src.location,
		src.sourceID,
		toNanos(card.CreatedAt),
	)
	if err != nil {
		return domain.Flashcard{}, fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return db.FindByFront(ctx, card.Front)
}

// Update overwrites the stored state of an existing card.
func (db *DB) Update(ctx context.Context, card domain.Flashcard) error {
	src := sourceColumns(card.Source)
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards
		SET content_key = ?, front = ?, back = ?, box = ?, last_reviewed = ?, next_review = ?,
			review_count = ?, category = ?, entry_id = ?, image_url = ?, location = ?, source_id = ?
		WHERE id = ?
	`,
		knol.Hash(card),
		card.Front,
		card.Back,
		card.Box,
		nullableNanos(card.LastReviewed),
		toNanos(card.NextReview),
		card.ReviewCount,
		card.Category,
		src.entryID,
		src.imageURL,
		src.location,
		src.sourceID,
		card.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", card.ID, err)
	}
	return expectOneRow(res, "card "+card.ID)
}

// Delete removes a card and its review history.
func (db *DB) Delete(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete of card %s: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_logs WHERE card_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete review logs for card %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	if err := expectOneRow(res, "card "+id); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertReviewLog appends a review outcome to a card's history.
func (db *DB) InsertReviewLog(ctx context.Context, log domain.ReviewLog) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, reviewed_at, correct, box_before, box_after, next_review)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		log.CardID,
		toNanos(log.Timestamp),
		log.Correct,
		log.BoxBefore,
		log.BoxAfter,
		toNanos(log.NextReview),
	)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %s: %w", log.CardID, err)
	}
	return nil
}

// ReviewLogs returns a card's review history, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, reviewed_at, correct, box_before, box_after, next_review
		FROM review_logs WHERE card_id = ? ORDER BY reviewed_at, id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			l          domain.ReviewLog
			reviewedAt int64
			nextReview int64
		)
		if err := rows.Scan(&l.CardID, &reviewedAt, &l.Correct, &l.BoxBefore, &l.BoxAfter, &nextReview); err != nil {
			return nil, fmt.Errorf("failed to scan review log row for card %s: %w", cardID, err)
		}
		l.Timestamp = fromNanos(reviewedAt)
		l.NextReview = fromNanos(nextReview)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type sourceCols struct {
	entryID, imageURL, location sql.NullString
	sourceID                    sql.NullInt64
}

func sourceColumns(src *domain.SourceContext) sourceCols {
	if src == nil {
		return sourceCols{}
	}
	return sourceCols{
		entryID:  nullString(src.EntryID),
		imageURL: nullString(src.ImageURL),
		location: nullString(src.Location),
		sourceID: sql.NullInt64{Int64: src.SourceID, Valid: src.SourceID != 0},
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}
