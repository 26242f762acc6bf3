// Package journal implements the append-only query journal: one JSON line
// per executed SQL statement, rotated by size, replayable against a fresh
// schema-compatible database for crash recovery.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codescope/codedb/internal/bytesize"
)

// Journal errors.
var (
	// ErrJournalClosed is returned when appending to a closed journal.
	ErrJournalClosed = errors.New("journal is closed")
)

// Entry records one executed SQL statement and its outcome. Entries are
// written once and never mutated; on-disk order is append order.
type Entry struct {
	TS            string `json:"ts"` // ISO-8601 UTC
	SQL           string `json:"sql"`
	Params        any    `json:"params"` // null, positional list, or named mapping
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// NewEntry builds an entry stamped with the current UTC time.
func NewEntry(sql string, params any, success bool) *Entry {
	return &Entry{
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		SQL:     sql,
		Params:  params,
		Success: success,
	}
}

// Journal is the append interface the driver writes through.
//
// Implementations must be safe for concurrent use from multiple
// goroutines.
type Journal interface {
	// Append writes one entry. Called immediately after every attempted
	// statement, successful or not.
	Append(entry *Entry) error

	// Close releases resources. Further appends fail with ErrJournalClosed.
	Close() error

	// IsEnabled returns true if entries are actually persisted.
	IsEnabled() bool
}

// NullJournal is a no-op implementation for when journaling is disabled.
type NullJournal struct{}

// NewNullJournal creates a new no-op journal.
func NewNullJournal() *NullJournal { return &NullJournal{} }

// Append is a no-op.
func (j *NullJournal) Append(*Entry) error { return nil }

// Close is a no-op.
func (j *NullJournal) Close() error { return nil }

// IsEnabled returns false (journaling disabled).
func (j *NullJournal) IsEnabled() bool { return false }

var _ Journal = (*NullJournal)(nil)

// Default rotation policy.
const (
	DefaultMaxBytes    = 100 * bytesize.MiB
	DefaultBackupCount = 5
)

// FileJournal appends JSONL entries to a file, rotating when the file
// reaches MaxBytes: file.N → file.(N+1) for N = backupCount-1..1, then
// file → file.1.
type FileJournal struct {
	mu sync.Mutex

	path        string
	maxBytes    int64
	backupCount int

	f      *os.File
	size   int64
	closed bool
}

// Option configures a FileJournal.
type Option func(*FileJournal)

// WithMaxBytes overrides the rotation threshold.
func WithMaxBytes(n int64) Option {
	return func(j *FileJournal) {
		if n > 0 {
			j.maxBytes = n
		}
	}
}

// WithBackupCount overrides the number of rotated siblings kept.
func WithBackupCount(n int) Option {
	return func(j *FileJournal) {
		if n > 0 {
			j.backupCount = n
		}
	}
}

// NewFileJournal opens (creating if needed) the journal at path.
func NewFileJournal(path string, opts ...Option) (*FileJournal, error) {
	j := &FileJournal{
		path:        path,
		maxBytes:    int64(DefaultMaxBytes),
		backupCount: DefaultBackupCount,
	}
	for _, opt := range opts {
		opt(j)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) open() error {
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal %q: %w", j.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat journal %q: %w", j.path, err)
	}

	j.f = f
	j.size = info.Size()
	return nil
}

// Append writes one entry as a single JSON line, rotating first when the
// file is at or past the size threshold.
func (j *FileJournal) Append(entry *Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrJournalClosed
	}

	if j.size >= j.maxBytes {
		if err := j.rotate(); err != nil {
			return err
		}
	}

	n, err := j.f.Write(line)
	j.size += int64(n)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// rotate shifts the backup chain and opens a fresh file. Caller holds j.mu.
func (j *FileJournal) rotate() error {
	if err := j.f.Close(); err != nil {
		return fmt.Errorf("close journal for rotation: %w", err)
	}

	for n := j.backupCount - 1; n >= 1; n-- {
		src := fmt.Sprintf("%s.%d", j.path, n)
		dst := fmt.Sprintf("%s.%d", j.path, n+1)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("rotate %q: %w", src, err)
			}
		}
	}

	if err := os.Rename(j.path, j.path+".1"); err != nil {
		return fmt.Errorf("rotate %q: %w", j.path, err)
	}

	return j.open()
}

// Size returns the current journal file size in bytes.
func (j *FileJournal) Size() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

// Close syncs and closes the journal file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if err := j.f.Sync(); err != nil {
		_ = j.f.Close()
		return fmt.Errorf("sync journal: %w", err)
	}
	return j.f.Close()
}

// IsEnabled returns true (entries are persisted).
func (j *FileJournal) IsEnabled() bool { return true }

var _ Journal = (*FileJournal)(nil)
