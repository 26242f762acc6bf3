package protocol

import "fmt"

// Result is the outcome of one handler invocation. Exactly three variants
// exist: SuccessResult (structured return values), DataResult (result sets)
// and ErrorResult. The variant is determined by the wire tag alone: the
// success flag plus whether data is a JSON object or a JSON array. Handlers
// never introspect payload shape beyond that.
type Result interface {
	// ToWire renders the result as the wire-level result object.
	ToWire() map[string]any

	isResult()
}

// SuccessResult carries structured return values.
type SuccessResult struct {
	Data map[string]any
}

// DataResult carries an ordered result set.
type DataResult struct {
	Rows []map[string]any
}

// ErrorResult carries a failure. The server converts it into the error
// member of the response envelope.
type ErrorResult struct {
	Code        ErrorCode
	Description string
	Details     map[string]any
}

func (SuccessResult) isResult() {}
func (DataResult) isResult()    {}
func (ErrorResult) isResult()   {}

// Success builds a SuccessResult from key/value pairs.
func Success(data map[string]any) SuccessResult {
	if data == nil {
		data = map[string]any{}
	}
	return SuccessResult{Data: data}
}

// Data builds a DataResult from rows.
func Data(rows []map[string]any) DataResult {
	if rows == nil {
		rows = []map[string]any{}
	}
	return DataResult{Rows: rows}
}

// Errorf builds an ErrorResult with a formatted description.
func Errorf(code ErrorCode, format string, args ...any) ErrorResult {
	return ErrorResult{Code: code, Description: fmt.Sprintf(format, args...)}
}

func (r SuccessResult) ToWire() map[string]any {
	return map[string]any{"success": true, "data": r.Data}
}

func (r DataResult) ToWire() map[string]any {
	return map[string]any{"success": true, "data": r.Rows}
}

func (r ErrorResult) ToWire() map[string]any {
	m := map[string]any{
		"success":     false,
		"error_code":  int(r.Code),
		"description": r.Description,
	}
	if len(r.Details) > 0 {
		m["details"] = r.Details
	}
	return m
}

// ParseResult reconstructs a Result from a wire-level result object.
// Used by the client to give callers the same variant the handler returned.
func ParseResult(wire map[string]any) (Result, error) {
	success, ok := wire["success"].(bool)
	if !ok {
		return nil, fmt.Errorf("result missing success flag")
	}

	if !success {
		code, _ := wire["error_code"].(float64)
		desc, _ := wire["description"].(string)
		details, _ := wire["details"].(map[string]any)
		return ErrorResult{Code: ErrorCode(code), Description: desc, Details: details}, nil
	}

	switch data := wire["data"].(type) {
	case nil:
		return Success(nil), nil
	case map[string]any:
		return SuccessResult{Data: data}, nil
	case []any:
		rows := make([]map[string]any, 0, len(data))
		for i, el := range data {
			row, ok := el.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("result row %d is not an object", i)
			}
			rows = append(rows, row)
		}
		return DataResult{Rows: rows}, nil
	default:
		return nil, fmt.Errorf("result data has unsupported type %T", data)
	}
}
