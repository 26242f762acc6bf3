package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// recordingExec captures replayed statements and fails the ones listed in
// failOn.
type recordingExec struct {
	statements []string
	params     []any
	failOn     map[string]bool
}

func (r *recordingExec) exec(sql string, params any) error {
	if r.failOn[sql] {
		return fmt.Errorf("simulated failure")
	}
	r.statements = append(r.statements, sql)
	r.params = append(r.params, params)
	return nil
}

func writeJournal(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.jsonl")
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write journal: %v", err)
	}
	return path
}

func TestReplayAppendOrder(t *testing.T) {
	path := writeJournal(t,
		`{"ts":"2026-08-26T10:00:00Z","sql":"CREATE TABLE t (id INTEGER, name TEXT)","params":null,"success":true}`,
		`{"ts":"2026-08-26T10:00:01Z","sql":"INSERT INTO t VALUES (?, ?)","params":[1,"alice"],"success":true}`,
		`{"ts":"2026-08-26T10:00:02Z","sql":"UPDATE t SET name = :name WHERE id = :id","params":{"id":1,"name":"bob"},"success":true}`,
	)

	exec := &recordingExec{}
	result, err := Replay(path, exec.exec, ReplayOptions{})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if result.Replayed != 3 || result.Failed != 0 {
		t.Fatalf("Replay() = %d replayed / %d failed, want 3/0", result.Replayed, result.Failed)
	}
	if exec.statements[0] != "CREATE TABLE t (id INTEGER, name TEXT)" {
		t.Errorf("statement 0 = %q", exec.statements[0])
	}

	// Positional params stay a list, named params stay a mapping.
	if _, ok := exec.params[1].([]any); !ok {
		t.Errorf("params 1 = %T, want []any", exec.params[1])
	}
	if m, ok := exec.params[2].(map[string]any); !ok || m["name"] != "bob" {
		t.Errorf("params 2 = %#v, want named mapping", exec.params[2])
	}
}

func TestReplayOnlySuccess(t *testing.T) {
	path := writeJournal(t,
		`{"ts":"2026-08-26T10:00:00Z","sql":"INSERT INTO t VALUES (1)","params":null,"success":true}`,
		`{"ts":"2026-08-26T10:00:01Z","sql":"INSERT INTO missing VALUES (1)","params":null,"success":false,"error":"no such table"}`,
		`{"ts":"2026-08-26T10:00:02Z","sql":"INSERT INTO t VALUES (2)","params":null,"success":true}`,
	)

	exec := &recordingExec{}
	result, err := Replay(path, exec.exec, ReplayOptions{OnlySuccess: true})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Replayed != 2 {
		t.Errorf("Replayed = %d, want 2", result.Replayed)
	}
	if len(exec.statements) != 2 {
		t.Errorf("executed %d statements, want 2", len(exec.statements))
	}
}

func TestReplayContinuesPastFailures(t *testing.T) {
	path := writeJournal(t,
		`{"ts":"2026-08-26T10:00:00Z","sql":"GOOD 1","params":null,"success":true}`,
		`not json at all`,
		`{"ts":"2026-08-26T10:00:01Z","sql":"BAD","params":null,"success":true}`,
		`{"ts":"2026-08-26T10:00:02Z","sql":"GOOD 2","params":null,"success":true}`,
	)

	exec := &recordingExec{failOn: map[string]bool{"BAD": true}}
	result, err := Replay(path, exec.exec, ReplayOptions{})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if result.Replayed != 2 {
		t.Errorf("Replayed = %d, want 2", result.Replayed)
	}
	if result.Failed != 2 {
		t.Errorf("Failed = %d, want 2 (one parse, one exec)", result.Failed)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %d entries, want 2", len(result.Errors))
	}
}

func TestReplayLimit(t *testing.T) {
	path := writeJournal(t,
		`{"ts":"2026-08-26T10:00:00Z","sql":"S1","params":null,"success":true}`,
		`{"ts":"2026-08-26T10:00:01Z","sql":"S2","params":null,"success":true}`,
		`{"ts":"2026-08-26T10:00:02Z","sql":"S3","params":null,"success":true}`,
	)

	exec := &recordingExec{}
	result, err := Replay(path, exec.exec, ReplayOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if result.Replayed != 2 {
		t.Errorf("Replayed = %d, want 2", result.Replayed)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := Replay(filepath.Join(t.TempDir(), "nope.jsonl"), func(string, any) error { return nil }, ReplayOptions{}); err == nil {
		t.Error("Replay() on missing file expected error, got nil")
	}
}
