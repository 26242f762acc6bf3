package protocol

// ErrorCode is a stable numeric wire error code.
//
// The values follow the JSON-RPC 2.0 convention: predefined codes for
// malformed requests, server-defined codes in the -32000 range. They are a
// wire contract and must never be renumbered.
type ErrorCode int

const (
	CodeInvalidRequest  ErrorCode = -32600
	CodeValidationError ErrorCode = -32602
	CodeInternalError   ErrorCode = -32603

	CodeDatabaseError    ErrorCode = -32000
	CodeTransactionError ErrorCode = -32001
	CodeTimeout          ErrorCode = -32002
	CodeQueueFull        ErrorCode = -32003
	CodeConnectionError  ErrorCode = -32004
	CodeNotFound         ErrorCode = -32005
)

// String returns the symbolic name of the code.
func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidRequest:
		return "INVALID_REQUEST"
	case CodeValidationError:
		return "VALIDATION_ERROR"
	case CodeInternalError:
		return "INTERNAL_ERROR"
	case CodeDatabaseError:
		return "DATABASE_ERROR"
	case CodeTransactionError:
		return "TRANSACTION_ERROR"
	case CodeTimeout:
		return "TIMEOUT"
	case CodeQueueFull:
		return "QUEUE_FULL"
	case CodeConnectionError:
		return "CONNECTION_ERROR"
	case CodeNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}
