package apperror

import "strings"

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeConfigInvalid Code = "CONFIG_INVALID"

	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Chain tracking error codes
const (
	CodeChainConnectionFailed   Code = "CHAIN_CONNECTION_FAILED"
	CodeChainSubscriptionFailed Code = "CHAIN_SUBSCRIPTION_FAILED"
	CodeChainRPCFailed          Code = "CHAIN_RPC_FAILED"
	CodeChainHeaderNotFound     Code = "CHAIN_HEADER_NOT_FOUND"
	CodeChainInvalidHeader      Code = "CHAIN_INVALID_HEADER"
)

// Gossip probe error codes
const (
	CodeGossipTransportFailed Code = "GOSSIP_TRANSPORT_FAILED"
	CodeGossipDecodeFailed    Code = "GOSSIP_DECODE_FAILED"
	CodeGossipUnknownMessage  Code = "GOSSIP_UNKNOWN_MESSAGE"
	CodeGossipNodeKeyInvalid  Code = "GOSSIP_NODE_KEY_INVALID"
)

// Report sink error codes
const (
	CodeReportEmitFailed  Code = "REPORT_EMIT_FAILED"
	CodeReportWriteFailed Code = "REPORT_WRITE_FAILED"
	CodeReportBusClosed   Code = "REPORT_BUS_CLOSED"
	CodeReportStoreFailed Code = "REPORT_STORE_FAILED"
)

// Transport plumbing error codes
const (
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketClosed          Code = "WEBSOCKET_CLOSED"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)

// Class groups codes by how the process must react to them.
type Class string

const (
	ClassConnectivity Class = "connectivity"
	ClassDecode       Class = "decode"
	ClassLookupMiss   Class = "lookup_miss"
	ClassSink         Class = "sink"
	ClassConfig       Class = "config"
	ClassInternal     Class = "internal"
)

func classOf(code Code) Class {
	switch {
	case code == CodeChainHeaderNotFound:
		return ClassLookupMiss
	case code == CodeGossipDecodeFailed, code == CodeGossipUnknownMessage, code == CodeChainInvalidHeader:
		return ClassDecode
	case strings.HasPrefix(string(code), "REPORT_"):
		return ClassSink
	case strings.HasPrefix(string(code), "CONFIG_"), code == CodeGossipNodeKeyInvalid:
		return ClassConfig
	case strings.Contains(string(code), "CONNECTION"),
		strings.Contains(string(code), "SUBSCRIPTION"),
		strings.Contains(string(code), "TRANSPORT"),
		strings.Contains(string(code), "RPC"),
		strings.HasPrefix(string(code), "WEBSOCKET_"),
		code == CodeCircuitOpen, code == CodeRateLimitExceeded:
		return ClassConnectivity
	default:
		return ClassInternal
	}
}
