package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	delivery "rpc-failover/internal/adapter/delivery/http"
	handler "rpc-failover/internal/adapter/handler/http"
	"rpc-failover/internal/adapter/rpc"
	"rpc-failover/internal/adapter/storage/chainconfig"
	"rpc-failover/internal/adapter/storage/chainlist"
	"rpc-failover/internal/adapter/storage/memory"
	"rpc-failover/internal/application"
	"rpc-failover/internal/config"
	applogger "rpc-failover/internal/logger"
	domainRepo "rpc-failover/internal/domain/repository"
)

func main() {
	// --- Configuration ---
	cfgPath := "configs"
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	// --- Logger ---
	logger, err := applogger.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer logger.Sync() // Ensure logs are flushed before exiting
	logger.Info("Logger initialized", zap.Any("config", cfg.Logger))

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Dependency Injection (Manual) ---
	logger.Info("Initializing dependencies...")

	var remote domainRepo.RemoteChainSource
	if cfg.Chainlist.Enabled {
		remote = chainlist.NewRepository(cfg.Chainlist, cfg.Cache, logger)
	}
	chainCfgRepo := chainconfig.NewRepository(cfg.Chains, remote, logger)
	rateLimits := memory.NewRateLimitRepository(cfg.Cache, logger)
	transport := rpc.NewTransport(logger)

	svc := application.NewFailoverService(chainCfgRepo, rateLimits, transport, logger, cfg.RPC)

	for _, chain := range cfg.Chains {
		if initErr := svc.InitializeChain(rootCtx, chain.ChainID); initErr != nil {
			logger.Warn("Failed to initialize configured chain",
				zap.Int64("chainId", chain.ChainID), zap.Error(initErr))
		}
	}

	svc.Start(rootCtx)
	defer svc.Stop()

	// --- HTTP Router & Server ---
	logger.Info("Setting up HTTP router...")
	r := router.New()

	failoverHandler := handler.NewFailoverHandler(svc, logger)
	delivery.RegisterRoutes(r, failoverHandler, logger)

	// Middleware (example: logging)
	loggingMiddleware := func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			logger.Info("Request received",
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("uri", ctx.RequestURI()))
			next(ctx)
		}
	}

	serverAddr := ":" + cfg.Server.Port
	logger.Info("Starting HTTP server", zap.String("address", serverAddr))

	server := &fasthttp.Server{Handler: loggingMiddleware(r.Handler)}
	go func() {
		<-rootCtx.Done()
		logger.Info("Shutdown signal received, stopping HTTP server...")
		if shutdownErr := server.Shutdown(); shutdownErr != nil {
			logger.Error("Error during server shutdown", zap.Error(shutdownErr))
		}
	}()

	if err := server.ListenAndServe(serverAddr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
