// Package gitrepo drives the git binary for the output and curated-event
// repositories.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	appLog "calfeed/internal/log"
)

// Repo is a working copy at Dir, optionally cloned from Remote.
type Repo struct {
	Dir    string
	Remote string
}

func New(dir, remote string) *Repo {
	return &Repo{Dir: dir, Remote: remote}
}

// Exists reports whether Dir is the root of a working copy.
func (r *Repo) Exists() bool {
	_, err := os.Stat(filepath.Join(r.Dir, ".git"))
	return err == nil
}

// Sync pulls (fast-forward only) an existing working copy or clones Remote
// shallowly into Dir.
func (r *Repo) Sync(ctx context.Context) error {
	if r.Exists() {
		_, err := r.run(ctx, "pull", "--ff-only", "-q")
		return err
	}
	if r.Remote == "" {
		return fmt.Errorf("%s is not a git repository and no remote is configured", r.Dir)
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(r.Dir)), 0o755); err != nil {
		return err
	}
	appLog.Info("cloning repository", "remote", r.Remote, "dir", r.Dir)
	return runGit(ctx, "", "clone", "-q", "--depth", "1", r.Remote, r.Dir)
}

func (r *Repo) Add(ctx context.Context, paths ...string) error {
	_, err := r.run(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// IsClean returns true if the working tree has no uncommitted changes,
// including untracked files.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(strings.TrimSpace(out)) == 0, nil
}

// Commit records all staged changes. It reports false without committing
// when there is nothing to commit.
func (r *Repo) Commit(ctx context.Context, author, message string) (bool, error) {
	clean, err := r.IsClean(ctx)
	if err != nil {
		return false, err
	}
	if clean {
		return false, nil
	}
	args := []string{"commit", "-q", "--no-gpg-sign", "--message", message}
	if author != "" {
		args = append(args, "--author", author)
	}
	if _, err := r.run(ctx, args...); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repo) Push(ctx context.Context) error {
	_, err := r.run(ctx, "push", "-q")
	return err
}

// Rollback restores tracked files to the last commit.
func (r *Repo) Rollback(ctx context.Context) error {
	_, err := r.run(ctx, "checkout", "--", ".")
	return err
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", gitError(args, stderr.String(), err)
	}
	return stdout.String(), nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return gitError(args, stderr.String(), err)
	}
	return nil
}

func gitError(args []string, stderr string, err error) error {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return fmt.Errorf("git not found in PATH: %w", err)
	}
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, msg)
}
