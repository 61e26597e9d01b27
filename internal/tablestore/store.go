// Implements the table store and its load/save contract.

package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
)

var errPathRequired = errors.New("tablestore: path is required")

// Store is an in-memory mapping of table name to ordered records, mirrored to
// one JSON file.
//
// All methods are safe for concurrent use; each runs to completion before the
// next one starts. CRUD methods never return errors: lookups report absence
// through their boolean result and persistence failures are only logged.
type Store struct {
	path   string
	log    *slog.Logger
	obs    Observer
	indent bool

	mu     sync.Mutex
	tables map[string][]Record
	w      *writer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load and save notices.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithObserver registers an observer for load, mutation and save events.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.obs = o
		}
	}
}

// WithIndent selects pretty-printed (2 spaces, the default) or compact snapshots.
func WithIndent(indent bool) Option {
	return func(s *Store) {
		s.indent = indent
	}
}

// Open creates a Store backed by path and loads its content.
//
// A missing file yields an empty store. An unreadable or malformed file is
// logged and also yields an empty store; the next mutation overwrites it.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errPathRequired
	}
	s := &Store{
		path:   path,
		log:    slog.Default(),
		obs:    nopObserver{},
		indent: true,
		tables: map[string][]Record{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load()
	s.w = newWriter(path, s.log, s.obs)
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Info("Table store file not found, starting empty", "path", s.path)
			s.obs.OnLoad(0, 0, nil)
			return
		}
		s.log.Error("Failed to read table store, starting empty", "path", s.path, "err", err)
		s.obs.OnLoad(0, 0, err)
		return
	}
	tables, err := decodeSnapshot(data)
	if err != nil {
		s.log.Error("Failed to parse table store, starting empty", "path", s.path, "err", err)
		s.obs.OnLoad(0, 0, err)
		return
	}
	records := 0
	for _, rows := range tables {
		records += len(rows)
	}
	s.tables = tables
	s.log.Info("Loaded table store", "path", s.path, "tables", len(tables), "records", records)
	s.obs.OnLoad(len(tables), records, nil)
}

// decodeSnapshot parses the persisted format.
func decodeSnapshot(data []byte) (map[string][]Record, error) {
	var tables map[string][]Record
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if tables == nil {
		tables = map[string][]Record{}
	}
	for name, rows := range tables {
		if rows == nil {
			tables[name] = []Record{}
			continue
		}
		for i, r := range rows {
			if r == nil {
				return nil, fmt.Errorf("table %q: row %d is not an object", name, i)
			}
		}
	}
	return tables, nil
}

// Select returns copies of every record of table in order. A missing table
// yields an empty slice.
func (s *Store) Select(table string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[table]
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

// Insert appends record to table, creating the table if needed, and returns
// record unchanged. Ids are not checked for collisions.
func (s *Store) Insert(table string, record Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := record.Clone()
	if c == nil {
		c = Record{}
	}
	s.tables[table] = append(s.tables[table], c)
	s.obs.OnMutation(OpInsert, table)
	s.persistLocked()
	return record
}

// Update shallow-merges patch over the first record of table with the given
// id and returns the merged record. It returns false, without persisting, when
// the table or the record does not exist.
func (s *Store) Update(table string, id any, patch Record) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return nil, false
	}
	i := indexOf(rows, id)
	if i < 0 {
		return nil, false
	}
	rows[i] = rows[i].merge(patch)
	s.obs.OnMutation(OpUpdate, table)
	s.persistLocked()
	return rows[i].Clone(), true
}

// Delete removes the first record of table with the given id. It returns
// false, without persisting, when nothing matched.
func (s *Store) Delete(table string, id any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		return false
	}
	i := indexOf(rows, id)
	if i < 0 {
		return false
	}
	s.tables[table] = slices.Delete(rows, i, i+1)
	s.obs.OnMutation(OpDelete, table)
	s.persistLocked()
	return true
}

// FindByID returns a copy of the first record of table with the given id.
func (s *Store) FindByID(table string, id any) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[table]
	i := indexOf(rows, id)
	if i < 0 {
		return nil, false
	}
	return rows[i].Clone(), true
}

// Tables returns the sorted table names.
func (s *Store) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.tables))
}

// Len returns the number of records in table.
func (s *Store) Len(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

// Snapshot returns the bytes that represent the current state on disk.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encodeLocked()
}

// Flush waits until every mutation made before the call has been written and
// returns the outcome of the last write. A snapshot that could not be encoded
// counts as a failed write.
func (s *Store) Flush(ctx context.Context) error {
	return s.w.flush(ctx)
}

// Close flushes pending writes and stops the writer. Mutations made after
// Close still apply in memory but are no longer persisted.
func (s *Store) Close(ctx context.Context) error {
	return s.w.close(ctx)
}

func (s *Store) encodeLocked() ([]byte, error) {
	var data []byte
	var err error
	if s.indent {
		data, err = json.MarshalIndent(s.tables, "", "  ")
	} else {
		data, err = json.Marshal(s.tables)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// persistLocked hands the current state to the writer. Must be called with
// s.mu held so that snapshots are queued in mutation order.
func (s *Store) persistLocked() {
	data, err := s.encodeLocked()
	if err != nil {
		s.log.Error("Failed to save table store", "path", s.path, "err", err)
		s.obs.OnSave(0, 0, err)
		if !s.w.fail(err) {
			s.log.Warn("Table store is closed, mutation kept in memory only", "path", s.path)
		}
		return
	}
	if !s.w.enqueue(data) {
		s.log.Warn("Table store is closed, mutation kept in memory only", "path", s.path)
	}
}
