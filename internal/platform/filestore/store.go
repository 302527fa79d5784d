// Package filestore implements the file-backed record store shared by every
// record kind: a header line followed by one csvline-encoded row per record.
//
// A Store guards its file with a single sync.RWMutex. Appends and rewrites
// take the write side, scans take the read side. Rewrites go through a
// temporary file that is renamed over the original before the lock is
// released, so readers observe either the old file or the new one.
package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carecircle/carecircle/internal/platform/csvline"
)

// maxLineSize bounds a single physical line read from a store file.
const maxLineSize = 1 << 20

// ErrStorage is matched by every error a Store returns.
var ErrStorage = errors.New("storage error")

// Error describes a failed store operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("filestore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) hold for every *Error.
func (e *Error) Is(target error) bool { return target == ErrStorage }

// Schema describes the columns of a store file.
type Schema struct {
	// Name identifies the store in logs and metrics (e.g. "vitals").
	Name string
	// Header is the canonical column list written as line 1.
	Header []string
	// IDColumn is the column holding the record id. When >= 0, Append fills
	// a blank id with a new UUID and DeleteByID matches on it.
	IDColumn int
}

// Observer receives the outcome of every store operation.
type Observer interface {
	ObserveStoreOp(store, op string, elapsed time.Duration, err error)
}

// Store is a handle on one store file. It is safe for concurrent use and is
// meant to be created once per file per process.
type Store struct {
	path     string
	schema   Schema
	mu       sync.RWMutex
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithObserver reports every operation to o.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New opens the store at path, creating parent directories and the header
// line as needed.
func New(path string, schema Schema, opts ...Option) (*Store, error) {
	if len(schema.Header) == 0 {
		return nil, fmt.Errorf("filestore: schema %q has no header", schema.Name)
	}
	if schema.Name == "" {
		schema.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	s := &Store{path: path, schema: schema}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, &Error{Op: "mkdir", Path: dir, Err: err}
		}
	}
	if err := s.EnsureHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file path backing the store.
func (s *Store) Path() string { return s.path }

// Name returns the schema name.
func (s *Store) Name() string { return s.schema.Name }

// Header returns a copy of the canonical header columns.
func (s *Store) Header() []string {
	out := make([]string, len(s.schema.Header))
	copy(out, s.schema.Header)
	return out
}

// EnsureHeader writes the header line if the file is absent or empty. It
// never touches existing content.
func (s *Store) EnsureHeader() (err error) {
	defer s.observe("ensure_header", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureHeaderLocked()
}

func (s *Store) ensureHeaderLocked() error {
	info, err := os.Stat(s.path)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Op: "stat", Path: s.path, Err: err}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return &Error{Op: "create", Path: s.path, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteString(csvline.Join(s.schema.Header...) + "\n"); err != nil {
		return &Error{Op: "write header", Path: s.path, Err: err}
	}
	return nil
}

// Append writes fields as one new row and returns the row id. When the
// schema has an id column and that field is blank, a new UUID is assigned.
// The row and its terminator are written with a single write so concurrent
// appenders never interleave.
func (s *Store) Append(fields []string) (id string, err error) {
	defer s.observe("append", time.Now(), &err)

	row := make([]string, len(fields))
	copy(row, fields)
	if c := s.schema.IDColumn; c >= 0 {
		for len(row) <= c {
			row = append(row, "")
		}
		if strings.TrimSpace(row[c]) == "" {
			row[c] = uuid.New().String()
		}
		id = row[c]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureHeaderLocked(); err != nil {
		return "", err
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return "", &Error{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()
	if _, err := f.WriteString(csvline.Join(row...) + "\n"); err != nil {
		return "", &Error{Op: "append", Path: s.path, Err: err}
	}
	return id, nil
}

// Scan returns every data row whose keyColumn value passes pred. A nil pred
// keeps every row. Rows that decode to nothing, or that are too short to
// have keyColumn, are skipped.
func (s *Store) Scan(keyColumn int, pred func(key string) bool) (rows [][]string, err error) {
	defer s.observe("scan", time.Now(), &err)

	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.readRowsLocked()
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if keyColumn >= len(r) {
			continue
		}
		if pred == nil || pred(r[keyColumn]) {
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// DeleteByID removes every row whose id column equals id and rewrites the
// file. It reports whether anything was removed; when nothing matches, the
// file is left untouched.
func (s *Store) DeleteByID(id string) (removed bool, err error) {
	defer s.observe("delete", time.Now(), &err)

	c := s.schema.IDColumn
	if c < 0 {
		return false, &Error{Op: "delete", Path: s.path, Err: errors.New("schema has no id column")}
	}
	if strings.TrimSpace(id) == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readRowsLocked()
	if err != nil {
		return false, err
	}
	remaining := make([][]string, 0, len(all))
	for _, r := range all {
		if csvline.Field(r, c) == id {
			continue
		}
		remaining = append(remaining, r)
	}
	if len(remaining) == len(all) {
		return false, nil
	}
	if err := s.writeAllLocked(remaining); err != nil {
		return false, err
	}
	return true, nil
}

// ReplaceAll rewrites the file with the header followed by rows.
func (s *Store) ReplaceAll(rows [][]string) (err error) {
	defer s.observe("replace", time.Now(), &err)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAllLocked(rows)
}

// readRowsLocked decodes every data row. Callers hold either side of mu.
func (s *Store) readRowsLocked() ([][]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &Error{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()

	var rows [][]string
	err = readRecords(f, func(line string) {
		if fields := csvline.Split(line); len(fields) > 0 {
			rows = append(rows, fields)
		}
	})
	if err != nil {
		return nil, &Error{Op: "read", Path: s.path, Err: err}
	}
	return rows, nil
}

// readRecords calls fn for every logical record after the header line.
// Physical lines are joined while a quoted field is still open, so fields
// holding line breaks survive a round trip. A line that is a complete row on
// its own is never absorbed: the open record ends where it stands, with its
// unclosed quote read to end of line.
func readRecords(r io.Reader, fn func(line string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	first := true
	var pending strings.Builder
	open := false
	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSuffix(raw, "\r")
		if first {
			first = false
			continue
		}
		if open {
			if !startsRow(line) {
				pending.WriteByte('\n')
				pending.WriteString(raw)
				if csvline.Complete(pending.String()) {
					fn(strings.TrimSuffix(pending.String(), "\r"))
					pending.Reset()
					open = false
				}
				continue
			}
			fn(strings.TrimSuffix(pending.String(), "\r"))
			pending.Reset()
			open = false
		}
		if !csvline.Complete(line) {
			pending.WriteString(raw)
			open = true
			continue
		}
		fn(line)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if open {
		fn(strings.TrimSuffix(pending.String(), "\r"))
	}
	return nil
}

// startsRow reports whether line decodes to a row of its own: balanced quotes
// and more than one field.
func startsRow(line string) bool {
	return csvline.Complete(line) && len(csvline.Split(line)) > 1
}

func (s *Store) writeAllLocked(rows [][]string) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &Error{Op: "rewrite", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(csvline.Join(s.schema.Header...) + "\n"); err != nil {
		tmp.Close()
		cleanup()
		return &Error{Op: "rewrite", Path: s.path, Err: err}
	}
	for _, r := range rows {
		if _, err := w.WriteString(csvline.Join(r...) + "\n"); err != nil {
			tmp.Close()
			cleanup()
			return &Error{Op: "rewrite", Path: s.path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		cleanup()
		return &Error{Op: "rewrite", Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &Error{Op: "rewrite", Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return &Error{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) observe(op string, start time.Time, err *error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveStoreOp(s.schema.Name, op, time.Since(start), *err)
}
