// Implements the serialized snapshot writer.

package tablestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// writer persists snapshots on its own goroutine, one at a time, in the order
// they were enqueued. Only the newest unwritten snapshot is kept.
type writer struct {
	path string
	log  *slog.Logger
	obs  Observer

	mu         sync.Mutex
	pending    []byte
	pendingSeq uint64
	queued     uint64 // last sequence number accepted by enqueue
	written    uint64 // last sequence number whose write completed
	err        error  // outcome of the last write
	closed     bool
	progress   chan struct{} // closed and replaced whenever written advances

	wake chan struct{}
	done chan struct{}
}

func newWriter(path string, log *slog.Logger, obs Observer) *writer {
	w := &writer{
		path:     path,
		log:      log,
		obs:      obs,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue schedules data to be written. It returns false once the writer is
// closed.
func (w *writer) enqueue(data []byte) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queued++
	w.pending = data
	w.pendingSeq = w.queued
	w.mu.Unlock()
	w.signal()
	return true
}

// fail records a snapshot that could not be encoded in place of a write, so
// that flush and close report it. An earlier snapshot still pending is
// written but no longer clears the error. It returns false once the writer is
// closed.
func (w *writer) fail(err error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.queued++
	w.written = w.queued
	w.err = err
	close(w.progress)
	w.progress = make(chan struct{})
	return true
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		data, seq, closed := w.pending, w.pendingSeq, w.closed
		w.pending = nil
		w.mu.Unlock()
		if data != nil {
			w.write(seq, data)
			continue
		}
		if closed {
			return
		}
		<-w.wake
	}
}

func (w *writer) write(seq uint64, data []byte) {
	start := time.Now()
	err := writeFileAtomic(w.path, data)
	d := time.Since(start)
	if err != nil {
		w.log.Error("Failed to save table store", "path", w.path, "err", err)
	} else {
		w.log.Debug("Saved table store", "path", w.path, "bytes", len(data), "dur", d)
	}
	w.obs.OnSave(len(data), d, err)

	w.mu.Lock()
	if seq > w.written {
		w.written = seq
		w.err = err
		close(w.progress)
		w.progress = make(chan struct{})
	}
	w.mu.Unlock()
}

// flush blocks until everything enqueued before the call has been written.
// It returns the outcome of the last write.
func (w *writer) flush(ctx context.Context) error {
	w.mu.Lock()
	target := w.queued
	w.mu.Unlock()
	for {
		w.mu.Lock()
		if w.written >= target {
			err := w.err
			w.mu.Unlock()
			return err
		}
		ch := w.progress
		w.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close stops accepting snapshots and waits for the goroutine to drain.
func (w *writer) close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: data directories are world-readable
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		return errors.Join(fmt.Errorf("failed to write snapshot: %w", err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Sync(); err != nil {
		return errors.Join(fmt.Errorf("failed to sync snapshot: %w", err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil { //nolint:gosec // G302: snapshot is not secret
		return errors.Join(fmt.Errorf("failed to chmod snapshot: %w", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Join(fmt.Errorf("failed to rename snapshot: %w", err), os.Remove(tmpPath))
	}
	return nil
}
