package http

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	handler "rpc-failover/internal/adapter/handler/http"
)

// RegisterRoutes sets up the relay and diagnostics routes plus the common
// health check.
func RegisterRoutes(r *router.Router, h *handler.FailoverHandler, logger *zap.Logger) {
	logger.Info("Setting up application-specific routes...")

	r.POST("/chains/{chainId:[0-9]+}/rpc", h.RelayRPC)
	r.GET("/chains/{chainId:[0-9]+}/health", h.GetHealth)
	r.GET("/chains/{chainId:[0-9]+}/endpoints", h.GetEndpoints)
	r.GET("/chains/{chainId:[0-9]+}/stats", h.GetStatistics)
	r.POST("/chains/{chainId:[0-9]+}/reset", h.ResetChain)

	logger.Info("Setting up health check route...")
	r.GET("/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("OK")
	})

	logger.Info("All routes registered.")
}
