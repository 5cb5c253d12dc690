// Package git records snapshot files in a local git repository so every
// mutation of the collection leaves a commit behind.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Status represents git state following a commit attempt.
type Status struct {
	Committed bool   `json:"committed"`
	Hash      string `json:"hash,omitempty"`
}

// Entry is one commit in the snapshot history.
type Entry struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	At      int64  `json:"at"`
}

// Options configures a repository. Track lists the worktree-relative files
// that are committed; everything else in the directory is ignored.
type Options struct {
	Branch      string
	AuthorName  string
	AuthorEmail string
	Track       []string
}

// Repo is a worktree repository. Commits are serialized.
type Repo struct {
	mu   sync.Mutex
	repo *gogit.Repository
	path string
	opts Options
}

// Open opens the repository at path, initializing it on first use.
func Open(path string, opts Options) (*Repo, error) {
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	repo, err := gogit.PlainOpen(path)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		repo, err = gogit.PlainInitWithOptions(path, &gogit.PlainInitOptions{
			InitOptions: gogit.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(opts.Branch)},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open repo %s: %w", path, err)
	}
	if err := writeIgnore(path, opts.Track); err != nil {
		return nil, err
	}
	return &Repo{repo: repo, path: path, opts: opts}, nil
}

func writeIgnore(dir string, track []string) error {
	var b strings.Builder
	b.WriteString("*\n!.gitignore\n")
	for _, f := range track {
		b.WriteString("!" + f + "\n")
	}
	return os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(b.String()), 0o600)
}

// Path returns the worktree root.
func (r *Repo) Path() string {
	return r.path
}

// Commit stages the tracked files and commits them.
// An unchanged tree reports Committed=false without error.
func (r *Repo) Commit(ctx context.Context, message string) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	wt, err := r.repo.Worktree()
	if err != nil {
		return Status{}, err
	}
	for _, f := range append([]string{".gitignore"}, r.opts.Track...) {
		if _, err := wt.Add(f); err != nil {
			return Status{}, fmt.Errorf("stage %s: %w", f, err)
		}
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  r.opts.AuthorName,
			Email: r.opts.AuthorEmail,
			When:  time.Now(),
		},
	})
	if errors.Is(err, gogit.ErrEmptyCommit) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("commit: %w", err)
	}
	return Status{Committed: true, Hash: hash.String()}, nil
}

// Log returns up to limit commits, newest first. A repository without
// commits yields an empty history.
func (r *Repo) Log(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0)
	head, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return entries, nil
	}
	if err != nil {
		return nil, err
	}
	iter, err := r.repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(entries) >= limit {
			return storer.ErrStop
		}
		entries = append(entries, Entry{
			Hash:    c.Hash.String(),
			Message: c.Message,
			At:      c.Author.When.UnixMilli(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
