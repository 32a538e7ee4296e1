package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/vocabox/internal/config"
	"github.com/conorfennell/vocabox/internal/importer"
	"github.com/conorfennell/vocabox/internal/leitner"
	"github.com/conorfennell/vocabox/internal/storage"
	"github.com/conorfennell/vocabox/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("vocabox failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Define and parse command-line flags
	flags := pflag.NewFlagSet("vocabox", pflag.ContinueOnError)
	config.Flags(flags)
	addSource := flags.String("add-source", "", "Register a directory or git URL of markdown decks")
	syncNow := flags.Bool("sync", false, "Import all sources before continuing")
	serve := flags.Bool("serve", false, "Start the HTTP API")
	stats := flags.Bool("stats", false, "Print deck statistics")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.Log.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the database
	db, err := storage.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("Database opened", "path", cfg.DB.Path)

	sched := leitner.NewScheduler(leitner.SystemClock())
	im := importer.New(db, sched, cfg.Repos, os.Stdout)

	// 3. Register configured sources
	paths := cfg.Sources
	if *addSource != "" {
		paths = append(paths, *addSource)
	}
	for _, path := range paths {
		id, err := im.AddSource(ctx, path)
		if err != nil {
			return err
		}
		slog.Debug("Source registered", "id", id, "path", path)
	}

	if *syncNow {
		reports, err := im.Run(ctx)
		for _, r := range reports {
			fmt.Printf("%s: %d parsed, %d new, %d removed, %d errors\n", r.Path, r.Parsed, r.Inserted, r.Deleted, len(r.Errors))
			for _, e := range r.Errors {
				fmt.Printf("  - %s\n", e)
			}
		}
		if err != nil {
			slog.Warn("Sync finished with errors", "error", err)
		}
	}

	if *stats {
		if err := printStats(ctx, db, sched); err != nil {
			return err
		}
	}

	if !*serve {
		return nil
	}

	// 4. Serve until interrupted
	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: web.NewServer(db, sched, im, web.Options{
			QuizSize:   cfg.Quiz.Size,
			MinDeck:    cfg.Quiz.MinDeck,
			SessionTTL: cfg.Quiz.SessionTTL,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printStats(ctx context.Context, db *storage.DB, sched *leitner.Scheduler) error {
	cards, err := db.Load(ctx)
	if err != nil {
		return err
	}
	st, err := leitner.GetStats(cards, sched.Now())
	if err != nil {
		return err
	}
	fmt.Printf("%d cards, %d due\n", st.Total, st.DueCount)
	for box := leitner.MinBox; box <= leitner.MaxBox; box++ {
		interval, _ := leitner.Interval(box)
		fmt.Printf("  box %d (every %s): %d\n", box, interval, st.PerBox[box])
	}
	return nil
}
