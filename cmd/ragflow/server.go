package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/ragflow"
	"github.com/BaSui01/ragflow/api/handlers"
	"github.com/BaSui01/ragflow/internal/auth"
	"github.com/BaSui01/ragflow/internal/cache"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/internal/server"
	"github.com/BaSui01/ragflow/internal/telemetry"
	"go.uber.org/zap"
)

// =============================================================================
// serve
// =============================================================================

func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return fail(err)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return fail(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fail(err)
	}

	pipe, err := ragflow.Open(cfg, logger)
	if err != nil {
		return fail(err)
	}

	collector := metrics.NewCollector()
	collector.SetStoreDocuments(pipe.Store.Len())
	pipe.Embedder.SetObserver(collector)
	pipe.Generator.SetObserver(collector)

	answerCache := cache.New(cfg.Redis, logger)
	defer answerCache.Close()

	var authManager *auth.Manager
	if cfg.Auth.SecretKey != "" {
		authManager = auth.NewManager(cfg.Auth.SecretKey, cfg.Auth.Expiration)
	} else {
		logger.Warn("auth secret not configured, running without authentication")
	}

	router := handlers.NewRouter(handlers.Deps{
		Store:          pipe.Store,
		Retriever:      pipe.Retriever,
		Generator:      pipe.Generator,
		Orchestrator:   pipe.Orchestrator,
		Ingestor:       pipe.Ingestor,
		Registry:       pipe.Registry,
		Cache:          answerCache,
		Auth:           authManager,
		Metrics:        collector,
		Logger:         logger,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	apiServer := server.NewManager("api", cfg.Server.HTTPPort, router, cfg.Server, logger)
	metricsServer := server.NewManager("metrics", cfg.Server.MetricsPort, collector.Handler(), cfg.Server, logger)

	errCh := make(chan error, 2)
	go func() { errCh <- apiServer.Start() }()
	go func() { errCh <- metricsServer.Start() }()

	logger.Info("ragflow started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort),
		zap.Int("documents", pipe.Store.Len()))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}

	logger.Info("ragflow stopped")
	return 0
}

// =============================================================================
// ingest
// =============================================================================

func cmdIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	rolesFlag := fs.String("roles", "", "comma-separated access roles for the ingested documents")
	cfg, files, err := loadConfig(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(files) == 0 {
		return fail(fmt.Errorf("ingest requires at least one file"))
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return fail(err)
	}
	defer logger.Sync()

	pipe, err := ragflow.Open(cfg, logger)
	if err != nil {
		return fail(err)
	}

	var roles []string
	if *rolesFlag != "" {
		for _, r := range strings.Split(*rolesFlag, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
	}

	ctx := context.Background()
	for _, path := range files {
		result, err := pipe.Ingestor.IngestFile(ctx, path, roles)
		if err != nil {
			return fail(fmt.Errorf("ingest %s: %w", path, err))
		}
		fmt.Printf("ingested %s: %d chunks, %d tokens\n", result.Source, result.ChunkCount, result.TokenCount)
	}

	fmt.Printf("store now holds %d documents\n", pipe.Store.Len())
	return 0
}

// =============================================================================
// query
// =============================================================================

func cmdQuery(args []string) int {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	mode := fs.String("mode", "rag", "answering mode: rag or agentic")
	k := fs.Int("k", 5, "number of chunks to retrieve")
	cfg, rest, err := loadConfig(fs, args)
	if err != nil {
		return fail(err)
	}
	if len(rest) == 0 {
		return fail(fmt.Errorf("query requires a question"))
	}
	question := strings.Join(rest, " ")

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return fail(err)
	}
	defer logger.Sync()

	pipe, err := ragflow.Open(cfg, logger)
	if err != nil {
		return fail(err)
	}

	ctx := context.Background()
	var out any

	switch *mode {
	case "agentic":
		out = pipe.Orchestrator.Search(ctx, question, nil)
	case "rag":
		results, err := pipe.Retriever.Retrieve(ctx, question, *k, nil)
		if err != nil {
			return fail(err)
		}
		out = pipe.Generator.Generate(ctx, question, results)
	default:
		return fail(fmt.Errorf("unknown mode %q", *mode))
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fail(err)
	}
	fmt.Println(string(data))
	return 0
}

// =============================================================================
// health
// =============================================================================

func cmdHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return fail(err)
	}

	url := fmt.Sprintf("http://localhost:%d/health", cfg.Server.HTTPPort)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Println("ok")
	return 0
}
