package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func readLines(t *testing.T, path string) []Entry {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("parse journal line: %v", err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestFileJournalAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.jsonl")

	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("NewFileJournal() error = %v", err)
	}

	entries := []*Entry{
		NewEntry("CREATE TABLE t (id INTEGER)", nil, true),
		NewEntry("INSERT INTO t VALUES (?)", []any{1}, true),
		NewEntry("INSERT INTO t VALUES (?)", []any{"x"}, false),
	}
	entries[2].Error = "datatype mismatch"

	for _, e := range entries {
		if err := j.Append(e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got := readLines(t, path)
	if len(got) != 3 {
		t.Fatalf("journal has %d lines, want 3", len(got))
	}
	if got[0].SQL != entries[0].SQL {
		t.Errorf("line 0 sql = %q, want %q", got[0].SQL, entries[0].SQL)
	}
	if got[2].Success {
		t.Error("line 2 journaled as success, want failure")
	}
	if got[2].Error != "datatype mismatch" {
		t.Errorf("line 2 error = %q", got[2].Error)
	}
}

func TestFileJournalAppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.jsonl")
	j, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("NewFileJournal() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := j.Append(NewEntry("SELECT 1", nil, true)); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Append() after close error = %v, want ErrJournalClosed", err)
	}
}

func TestFileJournalRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queries.jsonl")

	// Threshold small enough that every append rotates.
	j, err := NewFileJournal(path, WithMaxBytes(64), WithBackupCount(2))
	if err != nil {
		t.Fatalf("NewFileJournal() error = %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := j.Append(NewEntry("INSERT INTO t (a, b, c) VALUES (?, ?, ?)", []any{i, i, i}, true)); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Live file plus .1 and .2 siblings; .3 must never appear.
	for _, name := range []string{"queries.jsonl", "queries.jsonl.1", "queries.jsonl.2"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected rotation sibling %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "queries.jsonl.3")); !os.IsNotExist(err) {
		t.Errorf("backup beyond count exists (err = %v)", err)
	}
}

func TestNullJournal(t *testing.T) {
	j := NewNullJournal()
	if j.IsEnabled() {
		t.Error("NullJournal.IsEnabled() = true")
	}
	if err := j.Append(NewEntry("SELECT 1", nil, true)); err != nil {
		t.Errorf("NullJournal.Append() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("NullJournal.Close() error = %v", err)
	}
}
