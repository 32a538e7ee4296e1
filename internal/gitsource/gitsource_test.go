package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		expected string
		wantErr  bool
	}{
		{name: "https", url: "https://github.com/ana/decks.git", expected: filepath.Join("repos", "github.com", "ana", "decks")},
		{name: "https without suffix", url: "https://gitlab.com/ana/spanish", expected: filepath.Join("repos", "gitlab.com", "ana", "spanish")},
		{name: "scp-like", url: "git@github.com:ana/decks.git", expected: filepath.Join("repos", "github.com", "ana", "decks")},
		{name: "no path", url: "https://github.com/", wantErr: true},
		{name: "garbage", url: "not a url", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected an error for %q, got path %q", tc.url, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LocalPath() returned an unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("Expected '%s', but got '%s'", tc.expected, got)
			}
		})
	}
}

func TestIsGitURL(t *testing.T) {
	for path, expected := range map[string]bool{
		"https://github.com/ana/decks": true,
		"git@github.com:ana/decks.git": true,
		"/home/ana/decks.git":          true,
		"/home/ana/decks":              false,
		"decks":                        false,
	} {
		if got := IsGitURL(path); got != expected {
			t.Errorf("IsGitURL(%q) = %v, expected %v", path, got, expected)
		}
	}
}

func TestSyncClonesAndPulls(t *testing.T) {
	ctx := context.Background()
	origin := t.TempDir()

	repo, err := git.PlainInit(origin, false)
	if err != nil {
		t.Fatalf("Failed to init origin repo: %v", err)
	}
	commitFile(t, repo, origin, "verbs.md", "F: ir\nB: to go\n")

	checkout := filepath.Join(t.TempDir(), "nested", "decks")
	if err := Sync(ctx, origin, checkout, nil); err != nil {
		t.Fatalf("Initial Sync() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(checkout, "verbs.md")); err != nil {
		t.Fatalf("Expected cloned file to exist: %v", err)
	}

	commitFile(t, repo, origin, "nouns.md", "F: la casa\nB: the house\n")
	if err := Sync(ctx, origin, checkout, nil); err != nil {
		t.Fatalf("Second Sync() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(checkout, "nouns.md")); err != nil {
		t.Fatalf("Expected pulled file to exist: %v", err)
	}

	// Nothing new upstream.
	if err := Sync(ctx, origin, checkout, nil); err != nil {
		t.Fatalf("Up-to-date Sync() failed: %v", err)
	}
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatalf("Failed to add %s: %v", name, err)
	}
	_, err = wt.Commit("add "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "vocabox", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("Failed to commit %s: %v", name, err)
	}
}
