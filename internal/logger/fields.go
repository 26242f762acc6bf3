package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so the driver log
// can be filtered and aggregated by request, method, or transaction.
const (
	// RPC request lifecycle
	KeyRequestID = "request_id" // RPC request ID (client-generated or assigned)
	KeyMethod    = "method"     // RPC method name (insert, execute, index_file, ...)
	KeyPriority  = "priority"   // Queue priority band

	// Transactions
	KeyTransactionID = "transaction_id" // Driver transaction UUID

	// Connection
	KeyPeer   = "peer"   // Client peer identifier (socket address or PID)
	KeySocket = "socket" // Unix socket path

	// Database
	KeyTable = "table" // Target table name
	KeySQL   = "sql"   // SQL statement (truncated for logging)
	KeyRows  = "rows"  // Affected or returned row count

	// Outcome
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric wire error code
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
)
