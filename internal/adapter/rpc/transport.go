package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"rpc-failover/internal/domain/entity"
	domainService "rpc-failover/internal/domain/service"
	"rpc-failover/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.RPCTransport = (*Transport)(nil)

// Transport implements the domainService.RPCTransport interface. It posts
// JSON-RPC payloads over HTTP/HTTPS via fasthttp and over WS/WSS via
// gorilla/websocket.
type Transport struct {
	client *fasthttp.Client
	logger *zap.Logger
}

// NewTransport creates a new RPC transport instance.
func NewTransport(logger *zap.Logger) domainService.RPCTransport {
	return &Transport{
		client: &fasthttp.Client{
			ReadTimeout: 10 * time.Second,
		},
		logger: logger.Named("RPCTransport"),
	}
}

// Call dispatches the payload to the endpoint over the protocol its URL
// declares. The response is returned raw; classification of the body is the
// caller's concern.
func (t *Transport) Call(
	ctx context.Context,
	url entity.RPCURL,
	payload []byte,
	timeout time.Duration,
) (*domainService.CallResult, error) {
	if url.IsWebsocket() {
		return t.callWebsocket(ctx, url, payload, timeout)
	}

	switch url.Protocol() {
	case entity.ProtocolHTTP, entity.ProtocolHTTPS:
		return t.callHTTP(ctx, url, payload, timeout)
	default:
		t.logger.Warn("Unsupported protocol in RPC URL", zap.String("url", url.String()))
		return nil, fmt.Errorf("%w: unsupported protocol in URL %s", apperrors.ErrInvalidInput, url)
	}
}

// callHTTP performs the JSON-RPC exchange over HTTP/HTTPS.
func (t *Transport) callHTTP(
	ctx context.Context,
	url entity.RPCURL,
	payload []byte,
	timeout time.Duration,
) (*domainService.CallResult, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url.String())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	effectiveTimeout := t.effectiveTimeout(ctx, timeout)
	startTime := time.Now()

	var requestErr error
	if effectiveTimeout <= 0 {
		requestErr = t.client.Do(req, resp)
	} else {
		requestErr = t.client.DoTimeout(req, resp, effectiveTimeout)
	}

	latency := time.Since(startTime)

	if requestErr != nil {
		if errors.Is(requestErr, fasthttp.ErrTimeout) {
			t.logger.Debug("HTTP RPC call timed out",
				zap.String("url", url.String()),
				zap.Duration("timeout", effectiveTimeout),
				zap.Error(requestErr))
			return nil, fmt.Errorf("%w: http request to %s timed out after %v: %v",
				apperrors.ErrTimeout, url, effectiveTimeout, requestErr)
		}
		t.logger.Debug("HTTP RPC call failed", zap.String("url", url.String()), zap.Error(requestErr))
		return nil, fmt.Errorf("%w: http request to %s failed: %v",
			apperrors.ErrExternalServiceFailure, url, requestErr)
	}

	return &domainService.CallResult{
		Body:       append([]byte(nil), resp.Body()...),
		StatusCode: resp.StatusCode(),
		Latency:    latency,
	}, nil
}

// callWebsocket performs the JSON-RPC exchange over WS/WSS: dial, one write,
// one read. StatusCode is zero on success and the handshake status when the
// dial is rejected.
func (t *Transport) callWebsocket(
	ctx context.Context,
	url entity.RPCURL,
	payload []byte,
	timeout time.Duration,
) (*domainService.CallResult, error) {
	effectiveTimeout := t.effectiveTimeout(ctx, timeout)
	if effectiveTimeout <= 0 {
		effectiveTimeout = t.client.ReadTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: effectiveTimeout,
	}

	startTime := time.Now()
	conn, handshakeResp, err := dialer.DialContext(ctx, url.String(), nil)
	if err != nil {
		latency := time.Since(startTime)
		if handshakeResp != nil {
			// The server answered the upgrade with an HTTP error; surface the
			// status so the caller can classify 429/403.
			t.logger.Debug("WSS handshake rejected",
				zap.String("url", url.String()),
				zap.Int("statusCode", handshakeResp.StatusCode))
			return &domainService.CallResult{
				StatusCode: handshakeResp.StatusCode,
				Latency:    latency,
			}, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeoutError(err) {
			return nil, fmt.Errorf("%w: wss dial to %s timed out: %v", apperrors.ErrTimeout, url, err)
		}
		t.logger.Debug("WSS dial failed", zap.String("url", url.String()), zap.Error(err))
		return nil, fmt.Errorf("%w: wss dial to %s failed: %v", apperrors.ErrExternalServiceFailure, url, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(effectiveTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	if wErr := conn.WriteMessage(websocket.TextMessage, payload); wErr != nil {
		if isTimeoutError(wErr) {
			return nil, fmt.Errorf("%w: wss write to %s timed out: %v", apperrors.ErrTimeout, url, wErr)
		}
		return nil, fmt.Errorf("%w: wss write to %s failed: %v", apperrors.ErrExternalServiceFailure, url, wErr)
	}

	_, message, rErr := conn.ReadMessage()
	latency := time.Since(startTime)
	if rErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeoutError(rErr) {
			return nil, fmt.Errorf("%w: wss read from %s timed out: %v", apperrors.ErrTimeout, url, rErr)
		}
		t.logger.Debug("WSS read failed", zap.String("url", url.String()), zap.Error(rErr))
		return nil, fmt.Errorf("%w: wss read from %s failed: %v", apperrors.ErrExternalServiceFailure, url, rErr)
	}

	return &domainService.CallResult{
		Body:    message,
		Latency: latency,
	}, nil
}

// effectiveTimeout bounds the requested timeout by the context deadline when
// one is set.
func (t *Transport) effectiveTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining > 0 && (timeout <= 0 || remaining < timeout) {
			return remaining
		}
	}
	return timeout
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
