package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// IsGitURL reports whether path looks like a remote git repository rather
// than a local directory.
func IsGitURL(path string) bool {
	return strings.HasSuffix(path, ".git") ||
		strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://")
}

// LocalPath maps a repository URL to a checkout directory under baseDir,
// e.g. https://github.com/ana/decks.git -> baseDir/github.com/ana/decks.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		// scp-like syntax: git@host:owner/repo.git
		user, rest, ok := strings.Cut(repoURL, "@")
		if !ok || user == "" {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		host, repoPath, ok := strings.Cut(rest, ":")
		if !ok || host == "" || repoPath == "" {
			return "", fmt.Errorf("could not parse git URL: %s", repoURL)
		}
		return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	if strings.Trim(sanitizedPath, "/") == "" {
		return "", fmt.Errorf("git URL has no repository path: %s", repoURL)
	}
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}

// Sync clones a git repository if it doesn't exist at localPath, or pulls
// the latest changes if it does. Clone and pull progress is written to
// progress when it is non-nil.
func Sync(ctx context.Context, repoURL, localPath string, progress io.Writer) error {
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		slog.Info("Cloning deck repository", "url", repoURL, "path", localPath)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent of %s: %w", localPath, err)
		}
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      repoURL,
			Progress: progress,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", repoURL, err)
		}

	case err == nil:
		slog.Info("Pulling deck repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
			Progress:   progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}

	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}
