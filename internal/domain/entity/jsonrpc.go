package entity

import (
	"encoding/json"
	"regexp"
)

// JSONRPCResponse defines the basic structure for a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	ID      interface{}     `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError defines the structure for a JSON-RPC error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CodeRateLimited is the JSON-RPC error code providers use to signal request
// throttling.
const CodeRateLimited = -32005

// rateLimitPattern is a heuristic fallback: some providers only report
// throttling in free-form error text.
var rateLimitPattern = regexp.MustCompile(`(?i)rate limit|too many requests`)

// IsRateLimit reports whether the error signals request throttling, by code
// first and by message text as a fallback.
func (e *JSONRPCError) IsRateLimit() bool {
	if e == nil {
		return false
	}
	return e.Code == CodeRateLimited || rateLimitPattern.MatchString(e.Message)
}

// IsRateLimitMessage reports whether free-form error text looks like a
// throttling signal.
func IsRateLimitMessage(msg string) bool {
	return rateLimitPattern.MatchString(msg)
}
