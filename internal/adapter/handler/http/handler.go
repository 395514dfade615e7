package http

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"rpc-failover/internal/application/port"
	"rpc-failover/internal/domain"
)

// FailoverHandler exposes the failover manager over HTTP: a JSON-RPC relay
// endpoint plus diagnostic views of endpoint health.
type FailoverHandler struct {
	svc    port.FailoverService
	logger *zap.Logger
}

func NewFailoverHandler(svc port.FailoverService, logger *zap.Logger) *FailoverHandler {
	return &FailoverHandler{
		svc:    svc,
		logger: logger.Named("FailoverHandler"),
	}
}

// chainID extracts and parses the chainId path segment. It writes the error
// response itself and reports false when the value is unusable.
func (h *FailoverHandler) chainID(ctx *fasthttp.RequestCtx) (int64, bool) {
	chainIDStr, ok := ctx.UserValue("chainId").(string)
	if !ok {
		h.logger.Error("Failed to get chainId from request context")
		ctx.Error("Bad Request: Invalid chainId format", fasthttp.StatusBadRequest)
		return 0, false
	}

	chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
	if err != nil {
		h.logger.Error("Failed to parse chainId", zap.String("chainIdStr", chainIDStr), zap.Error(err))
		ctx.Error("Bad Request: Invalid chainId", fasthttp.StatusBadRequest)
		return 0, false
	}
	return chainID, true
}

// ensureChain lazily initializes the chain before serving. It writes the error
// response itself and reports false on failure.
func (h *FailoverHandler) ensureChain(ctx *fasthttp.RequestCtx, chainID int64) bool {
	if err := h.svc.InitializeChain(ctx, chainID); err != nil {
		if errors.Is(err, domain.ErrChainNotFound) {
			h.logger.Warn("Unknown chain requested", zap.Int64("chainId", chainID))
			ctx.Error("Not Found", fasthttp.StatusNotFound)
			return false
		}
		h.logger.Error("Failed to initialize chain", zap.Int64("chainId", chainID), zap.Error(err))
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return false
	}
	return true
}

// RelayRPC forwards a caller-supplied JSON-RPC payload through the failover
// request loop and returns the winning endpoint's response body verbatim.
func (h *FailoverHandler) RelayRPC(ctx *fasthttp.RequestCtx) {
	chainID, ok := h.chainID(ctx)
	if !ok {
		return
	}

	body := ctx.PostBody()
	if len(body) == 0 || !json.Valid(body) {
		h.logger.Warn("Rejecting non-JSON relay payload", zap.Int64("chainId", chainID))
		ctx.Error("Bad Request: body must be a JSON-RPC payload", fasthttp.StatusBadRequest)
		return
	}

	if !h.ensureChain(ctx, chainID) {
		return
	}

	resp, err := h.svc.Request(ctx, chainID, body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoEndpointsConfigured):
			h.logger.Warn("No endpoints configured for chain", zap.Int64("chainId", chainID))
			ctx.Error("Not Found: no endpoints configured", fasthttp.StatusNotFound)
		case errors.Is(err, domain.ErrAllEndpointsFailed):
			h.logger.Error("All endpoints failed", zap.Int64("chainId", chainID), zap.Error(err))
			ctx.Error("Bad Gateway: "+err.Error(), fasthttp.StatusBadGateway)
		default:
			h.logger.Error("Relay failed", zap.Int64("chainId", chainID), zap.Error(err))
			ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		}
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetBody(resp)
}

// GetHealth returns the per-endpoint health snapshot for a chain.
func (h *FailoverHandler) GetHealth(ctx *fasthttp.RequestCtx) {
	chainID, ok := h.chainID(ctx)
	if !ok {
		return
	}
	if !h.ensureChain(ctx, chainID) {
		return
	}

	snapshot := h.svc.GetHealthSnapshot(chainID)
	h.writeJSON(ctx, snapshot)
}

// GetEndpoints returns the chain's current fallback order.
func (h *FailoverHandler) GetEndpoints(ctx *fasthttp.RequestCtx) {
	chainID, ok := h.chainID(ctx)
	if !ok {
		return
	}
	if !h.ensureChain(ctx, chainID) {
		return
	}

	h.writeJSON(ctx, h.svc.GetFallbackOrder(chainID))
}

// GetStatistics returns aggregated health counters for a chain.
func (h *FailoverHandler) GetStatistics(ctx *fasthttp.RequestCtx) {
	chainID, ok := h.chainID(ctx)
	if !ok {
		return
	}
	if !h.ensureChain(ctx, chainID) {
		return
	}

	h.writeJSON(ctx, h.svc.GetStatistics(chainID))
}

// ResetChain restores the chain's endpoint health records to their initial state.
func (h *FailoverHandler) ResetChain(ctx *fasthttp.RequestCtx) {
	chainID, ok := h.chainID(ctx)
	if !ok {
		return
	}
	if !h.ensureChain(ctx, chainID) {
		return
	}

	h.svc.ResetChain(chainID)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (h *FailoverHandler) writeJSON(ctx *fasthttp.RequestCtx, v interface{}) {
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
