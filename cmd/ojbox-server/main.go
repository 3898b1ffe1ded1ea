package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ojbox/internal/common/cache"
	commonmw "ojbox/internal/common/http/middleware"
	"ojbox/internal/common/ratelimit"
	"ojbox/internal/common/storage"
	"ojbox/internal/judge/controller"
	"ojbox/internal/judge/sandbox/compiler"
	"ojbox/internal/judge/sandbox/engine"
	"ojbox/internal/judge/sandbox/guard"
	"ojbox/internal/judge/sandbox/observer"
	"ojbox/internal/judge/sandbox/pch"
	"ojbox/internal/judge/sandbox/profile"
	"ojbox/internal/judge/sandbox/runner"
	"ojbox/internal/judge/service"
	"ojbox/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/ojbox.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "ojbox server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.NewEngine(appCfg.Sandbox.toEngineConfig())
	if err != nil {
		return fmt.Errorf("init sandbox engine failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observer.NewPrometheusRecorder(registry)

	languages, err := profile.NewDefaultRegistry(appCfg.Languages)
	if err != nil {
		return fmt.Errorf("init language registry failed: %w", err)
	}

	headers := pch.NewCache(appCfg.PCH.toCacheConfig(), eng)
	if headers.Enabled() && appCfg.PCH.WarmOnStart {
		go headers.Warm(ctx)
	}

	store, err := buildBlobStore(ctx, appCfg)
	if err != nil {
		return err
	}

	sandboxSvc, err := service.NewService(service.Config{
		Builder:       compiler.New(appCfg.Compile.toCompilerConfig(appCfg.Sandbox.WorkRoot), eng, languages, headers, metrics),
		Executor:      runner.New(appCfg.Sandbox.toRunnerConfig(), eng, metrics),
		Guard:         guard.New(appCfg.Output.toGuardConfig(appCfg.MinIO.Bucket), store, metrics),
		MaxConcurrent: appCfg.Server.MaxConcurrent,
		SlotWait:      appCfg.Server.SlotWait,
	})
	if err != nil {
		return fmt.Errorf("init sandbox service failed: %w", err)
	}

	var limiter *ratelimit.Limiter
	if appCfg.RateLimit.Enabled {
		redisCache, err := cache.NewRedisCache(ctx, appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() {
			_ = redisCache.Close()
		}()
		limiter = ratelimit.NewLimiter(redisCache, appCfg.RateLimit.Window, appCfg.RateLimit.RedisTimeout)
	}

	router := buildRouter(appCfg, controller.NewSandboxController(sandboxSvc), limiter, metrics, registry)
	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "ojbox http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Bool("pch", headers.Enabled()),
			zap.Bool("offload", store != nil),
			zap.Bool("rateLimit", limiter != nil),
		)
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	return nil
}

// buildBlobStore returns nil when offload is disabled; the guard then only truncates.
func buildBlobStore(ctx context.Context, appCfg *AppConfig) (storage.BlobStore, error) {
	if !appCfg.Output.Offload {
		return nil, nil
	}
	minioStore, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("init minio failed: %w", err)
	}
	if appCfg.Output.EnsureBucket {
		ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		err := minioStore.EnsureBucket(ensureCtx, appCfg.MinIO.Bucket, appCfg.MinIO.Region, appCfg.Output.KeyPrefix, appCfg.Output.ExpireDays)
		if err != nil {
			return nil, fmt.Errorf("ensure output bucket failed: %w", err)
		}
	}
	return minioStore, nil
}

func buildRouter(appCfg *AppConfig, sandboxController *controller.SandboxController, limiter *ratelimit.Limiter, metrics commonmw.RateLimitObserver, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLogMiddleware())
	router.Use(maxBodyBytes(appCfg.Server.MaxBodyBytes))

	router.GET(appCfg.Server.MetricsPath, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	policy := commonmw.RateLimitPolicy{Window: appCfg.RateLimit.Window, IPMax: appCfg.RateLimit.IPMax}
	sandboxController.Register(router, commonmw.RateLimitMiddleware(limiter, policy, metrics))
	return router
}

func maxBodyBytes(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
