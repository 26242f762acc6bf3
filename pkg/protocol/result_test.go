package protocol

import (
	"encoding/json"
	"testing"
)

func TestResultVariantTagging(t *testing.T) {
	// The variant must survive a JSON round trip on the wire tag alone:
	// success flag plus object-vs-array shape of data.
	tests := []struct {
		name   string
		result Result
	}{
		{"success with data", Success(map[string]any{"transaction_id": "abc"})},
		{"success empty", Success(nil)},
		{"rows", Data([]map[string]any{{"id": float64(1)}, {"id": float64(2)}})},
		{"rows empty", Data(nil)},
		{"error", Errorf(CodeDatabaseError, "no such table: %s", "missing")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.result.ToWire())
			if err != nil {
				t.Fatalf("marshal wire result: %v", err)
			}

			var wire map[string]any
			if err := json.Unmarshal(raw, &wire); err != nil {
				t.Fatalf("unmarshal wire result: %v", err)
			}

			parsed, err := ParseResult(wire)
			if err != nil {
				t.Fatalf("ParseResult() error = %v", err)
			}

			switch want := tt.result.(type) {
			case SuccessResult:
				got, ok := parsed.(SuccessResult)
				if !ok {
					t.Fatalf("ParseResult() = %T, want SuccessResult", parsed)
				}
				if len(got.Data) != len(want.Data) {
					t.Errorf("data size = %d, want %d", len(got.Data), len(want.Data))
				}
			case DataResult:
				got, ok := parsed.(DataResult)
				if !ok {
					t.Fatalf("ParseResult() = %T, want DataResult", parsed)
				}
				if len(got.Rows) != len(want.Rows) {
					t.Errorf("row count = %d, want %d", len(got.Rows), len(want.Rows))
				}
			case ErrorResult:
				got, ok := parsed.(ErrorResult)
				if !ok {
					t.Fatalf("ParseResult() = %T, want ErrorResult", parsed)
				}
				if got.Code != want.Code {
					t.Errorf("code = %d, want %d", got.Code, want.Code)
				}
				if got.Description != want.Description {
					t.Errorf("description = %q, want %q", got.Description, want.Description)
				}
			}
		})
	}
}

func TestParseResultMissingSuccess(t *testing.T) {
	if _, err := ParseResult(map[string]any{"data": map[string]any{}}); err == nil {
		t.Error("ParseResult() without success flag expected error, got nil")
	}
}

func TestParseResultRejectsScalarData(t *testing.T) {
	wire := map[string]any{"success": true, "data": "not a collection"}
	if _, err := ParseResult(wire); err == nil {
		t.Error("ParseResult() with scalar data expected error, got nil")
	}
}

func TestErrorCodeNames(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{CodeInvalidRequest, "INVALID_REQUEST"},
		{CodeValidationError, "VALIDATION_ERROR"},
		{CodeDatabaseError, "DATABASE_ERROR"},
		{CodeTransactionError, "TRANSACTION_ERROR"},
		{CodeTimeout, "TIMEOUT"},
		{CodeQueueFull, "QUEUE_FULL"},
		{ErrorCode(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("ErrorCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}
