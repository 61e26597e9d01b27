// Records data file revisions in a git repository using go-git.

// Package history commits the table store file to a git repository after
// each successful save.
//
// Commits are made on a dedicated goroutine so that the store's writer is
// never blocked by git. Several saves that happen while a commit is running
// are folded into the next commit.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/maruel/jsondb/internal/tablestore"
)

// Author identifies who commits.
type Author struct {
	Name  string
	Email string
}

// Commit describes one revision of the data file.
type Commit struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	Body        string    `json:"body,omitempty"`
	Author      string    `json:"author"`
	AuthorEmail string    `json:"author_email"`
	Date        time.Time `json:"date"`
}

// Repo tracks one file of a git working directory.
type Repo struct {
	dir    string
	file   string
	author Author
	repo   *gogit.Repository

	gitMu sync.Mutex

	mu      sync.Mutex
	dirty   bool
	changes map[string]int // "op table" -> count since last commit
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// Open opens or initializes the repository at dir tracking file, a path
// relative to dir. Call Start to commit on saves.
func Open(dir, file string, author Author) (*Repo, error) {
	if author.Name == "" || author.Email == "" {
		return nil, errors.New("history: author name and email are required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet, initialize.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = author.Name
		cfg.User.Email = author.Email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Repo{
		dir:     dir,
		file:    file,
		author:  author,
		repo:    repo,
		changes: map[string]int{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// Commit stages the tracked file and commits it when it changed. It returns
// false when there was nothing to commit.
func (r *Repo) Commit(_ context.Context, msg string) (bool, error) {
	r.gitMu.Lock()
	defer r.gitMu.Unlock()

	w, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := w.Add(r.file); err != nil {
		return false, fmt.Errorf("failed to stage %s: %w", r.file, err)
	}
	status, err := w.Status()
	if err != nil {
		return false, fmt.Errorf("failed to get worktree status: %w", err)
	}
	// Other files of the directory are not tracked, only look at ours.
	if s := status.File(r.file); s.Staging == gogit.Unmodified || s.Staging == gogit.Untracked {
		return false, nil
	}
	sig := &object.Signature{Name: r.author.Name, Email: r.author.Email, When: time.Now()}
	if _, err = w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// Log returns the most recent commits touching the tracked file, newest
// first, limited to n (1000 when n is out of range).
func (r *Repo) Log(_ context.Context, n int) ([]Commit, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	r.gitMu.Lock()
	defer r.gitMu.Unlock()

	file := r.file
	iter, err := r.repo.Log(&gogit.LogOptions{FileName: &file})
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// No HEAD until the first commit.
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer iter.Close()

	out := []Commit{}
	for range n {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history: %w", err)
		}
		subject, body, _ := strings.Cut(c.Message, "\n")
		out = append(out, Commit{
			Hash:        c.Hash.String(),
			Message:     subject,
			Body:        strings.TrimSpace(body),
			Author:      c.Author.Name,
			AuthorEmail: c.Author.Email,
			Date:        c.Author.When,
		})
	}
	return out, nil
}

// Start launches the goroutine committing after saves.
func (r *Repo) Start() {
	go r.run()
}

// Close commits anything pending and stops the goroutine started by Start.
func (r *Repo) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.signal()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Repo) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Repo) run() {
	defer close(r.done)
	for {
		r.mu.Lock()
		dirty, closed := r.dirty, r.closed
		changes := r.changes
		r.dirty = false
		r.changes = map[string]int{}
		r.mu.Unlock()
		if dirty {
			msg := commitMessage(r.file, changes)
			if ok, err := r.Commit(context.Background(), msg); err != nil {
				slog.Error("Failed to commit data file", "file", r.file, "err", err)
			} else if ok {
				slog.Debug("Committed data file", "file", r.file)
			}
			continue
		}
		if closed {
			return
		}
		<-r.wake
	}
}

func commitMessage(file string, changes map[string]int) string {
	var b strings.Builder
	b.WriteString("Update ")
	b.WriteString(file)
	if len(changes) > 0 {
		b.WriteString("\n\n")
		for _, k := range slices.Sorted(maps.Keys(changes)) {
			b.WriteString(k)
			if n := changes[k]; n > 1 {
				b.WriteString(" x")
				b.WriteString(strconv.Itoa(n))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// OnLoad implements tablestore.Observer.
func (r *Repo) OnLoad(int, int, error) {}

// OnMutation implements tablestore.Observer.
func (r *Repo) OnMutation(op tablestore.Op, table string) {
	r.mu.Lock()
	r.changes[string(op)+" "+table]++
	r.mu.Unlock()
}

// OnSave implements tablestore.Observer.
func (r *Repo) OnSave(_ int, _ time.Duration, err error) {
	if err != nil {
		return
	}
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
	r.signal()
}
