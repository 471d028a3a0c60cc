package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput:  "Invalid input provided",
	CodeConfigInvalid: "Invalid configuration",

	CodeRateLimitExceeded: "Rate limit exceeded",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "Unknown error",

	// Chain tracking
	CodeChainConnectionFailed:   "Failed to connect to chain node",
	CodeChainSubscriptionFailed: "Header subscription failed",
	CodeChainRPCFailed:          "Chain RPC request failed",
	CodeChainHeaderNotFound:     "Header required by ancestor search is unknown to the node",
	CodeChainInvalidHeader:      "Malformed header from chain node",

	// Gossip probe
	CodeGossipTransportFailed: "Peer transport failed",
	CodeGossipDecodeFailed:    "Undecodable wire payload",
	CodeGossipUnknownMessage:  "Unknown wire message",
	CodeGossipNodeKeyInvalid:  "Invalid node key",

	// Report sink
	CodeReportEmitFailed:  "Failed to enqueue metric event",
	CodeReportWriteFailed: "Metric sink rejected event",
	CodeReportBusClosed:   "Metric event bus is closed",
	CodeReportStoreFailed: "Metric store operation failed",

	// Transport plumbing
	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketClosed:          "WebSocket connection closed",
	CodeWebSocketSendError:       "Failed to send WebSocket message",
	CodeCircuitOpen:              "Circuit breaker is open",
}
