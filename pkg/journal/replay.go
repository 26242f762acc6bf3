package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ExecFunc executes one journaled statement during replay. Params is nil,
// a positional []any, or a named map[string]any, exactly as journaled.
type ExecFunc func(sql string, params any) error

// ReplayOptions control which entries are re-executed.
type ReplayOptions struct {
	// OnlySuccess skips entries journaled with success=false.
	OnlySuccess bool

	// Limit stops after replaying this many entries. Zero means no limit.
	Limit int
}

// ReplayResult summarizes one replay pass.
type ReplayResult struct {
	Replayed int      `json:"replayed"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// maxLineSize bounds a single journal line during replay. Matches the wire
// frame cap: no statement larger than a frame can have been journaled.
const maxLineSize = 10 * 1024 * 1024

// Replay scans the journal at path in append order and passes each entry
// to exec. Unparseable lines are counted as failures and skipped; exec
// errors are counted as failures and replay continues. Replay is
// deterministic modulo SQL statement determinism: the restored database is
// assumed to start from a schema-compatible empty state.
func Replay(path string, exec ExecFunc, opts ReplayOptions) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	result := &ReplayResult{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}

		if opts.OnlySuccess && !entry.Success {
			continue
		}

		if err := exec(entry.SQL, normalizeParams(entry.Params)); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}

		result.Replayed++
		if opts.Limit > 0 && result.Replayed >= opts.Limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan journal %q: %w", path, err)
	}
	return result, nil
}

// normalizeParams keeps list params positional and mapping params named;
// anything else is passed through untouched.
func normalizeParams(params any) any {
	switch p := params.(type) {
	case []any:
		return p
	case map[string]any:
		return p
	default:
		return params
	}
}
