package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/vocabox/internal/domain"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newCard(id, front, back string) domain.Flashcard {
	return domain.Flashcard{
		ID:         id,
		Front:      front,
		Back:       back,
		Box:        1,
		NextReview: now.Add(24 * time.Hour),
		CreatedAt:  now,
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	card := newCard("a1", "el museo", "the museum")
	card.Category = "places"
	card.Source = &domain.SourceContext{EntryID: "entry-7", Location: "Madrid"}

	saved, err := db.Save(ctx, card)
	require.NoError(t, err)
	assert.Equal(t, "a1", saved.ID)

	cards, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	got := cards[0]
	assert.Equal(t, card.Front, got.Front)
	assert.Equal(t, card.Back, got.Back)
	assert.Equal(t, 1, got.Box)
	assert.Nil(t, got.LastReviewed)
	assert.True(t, card.NextReview.Equal(got.NextReview))
	assert.True(t, card.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, "places", got.Category)
	require.NotNil(t, got.Source)
	assert.Equal(t, "entry-7", got.Source.EntryID)
	assert.Equal(t, "Madrid", got.Source.Location)
}

func TestSaveDeduplicatesByFront(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first, err := db.Save(ctx, newCard("a1", "La Playa", "the beach"))
	require.NoError(t, err)

	second, err := db.Save(ctx, newCard("b2", "  la playa ", "beach"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "the beach", second.Back)

	cards, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestConcurrentSavesConverge(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			saved, err := db.Save(ctx, newCard(fmt.Sprintf("id-%d", i), "el tren", "the train"))
			assert.NoError(t, err)
			ids[i] = saved.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	cards, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	card, err := db.Save(ctx, newCard("a1", "el mercado", "the market"))
	require.NoError(t, err)

	reviewed := now.Add(time.Hour)
	card.Box = 2
	card.ReviewCount = 1
	card.LastReviewed = &reviewed
	card.NextReview = reviewed.Add(48 * time.Hour)
	require.NoError(t, db.Update(ctx, card))

	got, err := db.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Box)
	assert.Equal(t, 1, got.ReviewCount)
	require.NotNil(t, got.LastReviewed)
	assert.True(t, reviewed.Equal(*got.LastReviewed))
	assert.True(t, card.NextReview.Equal(got.NextReview))

	missing := newCard("zz", "nada", "nothing")
	assert.ErrorIs(t, db.Update(ctx, missing), ErrNotFound)
}

func TestUpdateRejectsOutOfRangeBox(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	card, err := db.Save(ctx, newCard("a1", "el río", "the river"))
	require.NoError(t, err)

	card.Box = 6
	assert.Error(t, db.Update(ctx, card))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Save(ctx, newCard("a1", "la iglesia", "the church"))
	require.NoError(t, err)
	require.NoError(t, db.InsertReviewLog(ctx, domain.ReviewLog{
		CardID: "a1", Timestamp: now, Correct: true, BoxBefore: 1, BoxAfter: 2, NextReview: now,
	}))

	require.NoError(t, db.Delete(ctx, "a1"))

	_, err = db.FindByID(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
	logs, err := db.ReviewLogs(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, logs)

	assert.ErrorIs(t, db.Delete(ctx, "a1"), ErrNotFound)
}

func TestReviewLogs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for i, correct := range []bool{true, false} {
		require.NoError(t, db.InsertReviewLog(ctx, domain.ReviewLog{
			CardID:     "a1",
			Timestamp:  now.Add(time.Duration(i) * time.Hour),
			Correct:    correct,
			BoxBefore:  2,
			BoxAfter:   map[bool]int{true: 3, false: 1}[correct],
			NextReview: now.Add(24 * time.Hour),
		}))
	}

	logs, err := db.ReviewLogs(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].Correct)
	assert.Equal(t, 3, logs[0].BoxAfter)
	assert.False(t, logs[1].Correct)
	assert.Equal(t, 1, logs[1].BoxAfter)
}

func TestSources(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.InsertSource(ctx, "/decks/andalucia", SourceLocal)
	require.NoError(t, err)

	_, err = db.InsertSource(ctx, "/decks/andalucia", SourceLocal)
	assert.Error(t, err, "paths are unique")

	src, err := db.FindSourceByPath(ctx, "/decks/andalucia")
	require.NoError(t, err)
	assert.Equal(t, id, src.ID)
	assert.Nil(t, src.LastScanned)

	require.NoError(t, db.UpdateSourceLastScanned(ctx, id, now))
	sources, err := db.AllSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.NotNil(t, sources[0].LastScanned)
	assert.True(t, now.Equal(*sources[0].LastScanned))

	card := newCard("a1", "la alhambra", "the alhambra")
	card.Source = &domain.SourceContext{SourceID: id}
	_, err = db.Save(ctx, card)
	require.NoError(t, err)

	bySource, err := db.CardsBySource(ctx, id)
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "a1", bySource[0].ID)

	require.NoError(t, db.DeleteSource(ctx, id))
	cards, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cards)

	_, err = db.FindSourceByPath(ctx, "/decks/andalucia")
	assert.ErrorIs(t, err, ErrNotFound)
}
