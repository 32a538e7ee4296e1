// Package importer keeps the card store in step with vocabulary decks kept
// in local directories or git repositories.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/vocabox/internal/domain"
	"github.com/conorfennell/vocabox/internal/gitsource"
	"github.com/conorfennell/vocabox/internal/knol"
	"github.com/conorfennell/vocabox/internal/leitner"
	"github.com/conorfennell/vocabox/internal/parser"
	"github.com/conorfennell/vocabox/internal/storage"
)

// Store is the subset of the card store the importer needs.
type Store interface {
	AllSources(ctx context.Context) ([]storage.Source, error)
	FindSourceByPath(ctx context.Context, path string) (storage.Source, error)
	InsertSource(ctx context.Context, path, sourceType string) (int64, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
	CardsBySource(ctx context.Context, sourceID int64) ([]domain.Flashcard, error)
	Save(ctx context.Context, card domain.Flashcard) (domain.Flashcard, error)
	Delete(ctx context.Context, id string) error
}

// Report summarises one source reconciliation.
type Report struct {
	SourceID int64
	Path     string
	Parsed   int
	Inserted int
	Deleted  int
	Errors   []error
}

// Importer reconciles deck sources into the store.
type Importer struct {
	store    Store
	sched    *leitner.Scheduler
	reposDir string
	progress io.Writer
}

// New returns an Importer that checks git sources out under reposDir.
func New(store Store, sched *leitner.Scheduler, reposDir string, progress io.Writer) *Importer {
	return &Importer{
		store:    store,
		sched:    sched,
		reposDir: reposDir,
		progress: progress,
	}
}

// AddSource registers a local directory or git URL as a deck source. A
// path that is already registered returns its existing id.
func (im *Importer) AddSource(ctx context.Context, path string) (int64, error) {
	sourceType := storage.SourceLocal
	if gitsource.IsGitURL(path) {
		sourceType = storage.SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve source path %s: %w", path, err)
		}
		path = abs
	}

	existing, err := im.store.FindSourceByPath(ctx, path)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	id, err := im.store.InsertSource(ctx, path, sourceType)
	if err != nil {
		return 0, err
	}
	slog.Info("Source added", "id", id, "type", sourceType, "path", path)
	return id, nil
}

// Run reconciles every configured source. A failing source is logged and
// skipped; the returned error joins all per-source failures.
func (im *Importer) Run(ctx context.Context) ([]Report, error) {
	slog.Info("Starting sync process for all sources...")
	sources, err := im.store.AllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with --add-source <path/or/url.git>")
		return nil, nil
	}

	var (
		reports []Report
		errs    []error
	)
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == storage.SourceGit {
			localRepoPath, err := gitsource.LocalPath(im.reposDir, source.Path)
			if err != nil {
				slog.Error("Error determining local path for git repo", "url", source.Path, "error", err)
				errs = append(errs, err)
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localRepoPath, im.progress); err != nil {
				slog.Error("Error syncing git repo", "url", source.Path, "error", err)
				errs = append(errs, err)
				continue
			}
			dir = localRepoPath
		}

		report, err := im.reconcile(ctx, source.ID, dir)
		if err != nil {
			slog.Error("Error reconciling source", "id", source.ID, "path", dir, "error", err)
			errs = append(errs, fmt.Errorf("source %d: %w", source.ID, err))
			continue
		}
		reports = append(reports, report)
	}
	slog.Info("Sync process complete.")
	return reports, errors.Join(errs...)
}

// reconcile imports every deck file under dir and removes cards of this
// source that no longer appear in any file.
func (im *Importer) reconcile(ctx context.Context, sourceID int64, dir string) (Report, error) {
	report := Report{SourceID: sourceID, Path: dir}
	found := make(map[string]bool)
	// set when a deck could not be read to the end; its missing cards are
	// unknown, so nothing is treated as orphaned
	incomplete := false

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		entries, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
			if errors.Is(parseErr, parser.ErrUnreadable) {
				incomplete = true
			}
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}

		for _, e := range entries {
			report.Parsed++
			key := knol.ContentKey(e.Front)
			found[key] = true

			card, err := im.sched.NewCard(e.Front, e.Back, e.Category, &domain.SourceContext{
				EntryID:  fmt.Sprintf("%s:%d", filepath.ToSlash(rel), e.Line),
				SourceID: sourceID,
			})
			if err != nil {
				return err
			}
			saved, err := im.store.Save(ctx, card)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("db insert for %q: %w", e.Front, err))
				continue
			}
			if saved.ID == card.ID {
				slog.Debug("New card found, inserted", "id", saved.ID, "front", saved.Front)
				report.Inserted++
			}
		}
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	if incomplete {
		slog.Warn("Skipping orphan removal, a deck file could not be read", "source_id", sourceID, "path", dir)
	} else if err := im.removeOrphans(ctx, sourceID, found, &report); err != nil {
		return report, err
	}

	if err := im.store.UpdateSourceLastScanned(ctx, sourceID, im.sched.Now()); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", sourceID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", dir,
		"parsed_cards", report.Parsed,
		"inserted", report.Inserted,
		"orphaned_deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

// removeOrphans deletes cards of the source whose content key is not in found.
func (im *Importer) removeOrphans(ctx context.Context, sourceID int64, found map[string]bool, report *Report) error {
	existing, err := im.store.CardsBySource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("error getting cards for source: %w", err)
	}
	for _, card := range existing {
		if found[knol.Hash(card)] {
			continue
		}
		slog.Info("Orphaned card, deleting", "id", card.ID, "front", card.Front)
		if err := im.store.Delete(ctx, card.ID); err != nil {
			slog.Warn("Failed to delete orphaned card", "id", card.ID, "error", err)
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Deleted++
	}
	return nil
}
