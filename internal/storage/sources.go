package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/vocabox/internal/domain"
)

// Source kinds.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source represents a deck source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned *time.Time
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (Source, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Source{}, fmt.Errorf("source %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Source{}, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return s, nil
}

// AllSources retrieves all stored sources from the database.
func (db *DB) AllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	sources := []Source{}
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned records when a source was last reconciled.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, toNanos(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return expectOneRow(res, fmt.Sprintf("source %d", sourceID))
}

// DeleteSource removes a source together with the cards imported from it.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete of source %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM review_logs
		WHERE card_id IN (SELECT id FROM cards WHERE source_id = ?)
	`, sourceID); err != nil {
		return fmt.Errorf("failed to delete review logs for source %d: %w", sourceID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete cards for source %d: %w", sourceID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
	}
	if err := expectOneRow(res, fmt.Sprintf("source %d", sourceID)); err != nil {
		return err
	}
	return tx.Commit()
}

// CardsBySource retrieves all cards imported from a specific source.
func (db *DB) CardsBySource(ctx context.Context, sourceID int64) ([]domain.Flashcard, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var cards []domain.Flashcard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row for source ID %d: %w", sourceID, err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func scanSource(row rowScanner) (Source, error) {
	var (
		s           Source
		lastScanned sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Path, &s.Type, &lastScanned); err != nil {
		return Source{}, err
	}
	if lastScanned.Valid {
		t := fromNanos(lastScanned.Int64)
		s.LastScanned = &t
	}
	return s, nil
}
