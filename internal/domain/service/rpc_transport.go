package service

import (
	"context"
	"time"

	"rpc-failover/internal/domain/entity"
)

// CallResult carries the transport-level outcome of one JSON-RPC exchange.
// StatusCode is the HTTP status for http(s) endpoints and the handshake status
// for websocket endpoints (0 when none was received).
type CallResult struct {
	Body       []byte
	StatusCode int
	Latency    time.Duration
}

// RPCTransport posts a caller-supplied JSON-RPC payload to a single endpoint.
// Timeouts are surfaced wrapped in apperrors.ErrTimeout so callers can
// classify them; other transport failures wrap apperrors.ErrExternalServiceFailure.
type RPCTransport interface {
	Call(ctx context.Context, url entity.RPCURL, payload []byte, timeout time.Duration) (*CallResult, error)
}
