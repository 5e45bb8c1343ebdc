// Command ingestd runs the log ingestion endpoint. Client processes
// post their batches here; the daemon stores them as NDJSON files and
// serves listing, replay and live tail on top.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/DeBrosOfficial/logfan/pkg/config"
	"github.com/DeBrosOfficial/logfan/pkg/ingest"
	"github.com/DeBrosOfficial/logfan/pkg/pipeline"
)

const shutdownTimeout = 10 * time.Second

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func main() {
	addr := flag.String("addr", getEnvDefault("LOGFAN_INGEST_ADDR", ":7430"), "HTTP listen address (e.g., :7430)")
	dir := flag.String("dir", getEnvDefault("LOGFAN_INGEST_DIR", "./logs"), "Directory for stored log files")
	apiKey := flag.String("api-key", getEnvDefault("LOGFAN_INGEST_API_KEY", ""), "API key clients must present (empty disables auth)")
	configPath := flag.String("config", getEnvDefault("LOGFAN_CONFIG", ""), "Config file for the daemon's own logging")
	environment := flag.String("environment", getEnvDefault("LOGFAN_ENV", ""), "Deployment tier (development, staging, production)")
	flag.Parse()

	// The daemon logs through its own pipeline; its monitor doubles as
	// the health probe behind /health.
	opts := []pipeline.Option{
		pipeline.WithOverrides(map[string]any{"role": config.RoleServer}),
	}
	if *configPath != "" {
		opts = append(opts, pipeline.WithConfigFile(*configPath))
	}
	if *environment != "" {
		opts = append(opts, pipeline.WithEnvironment(*environment))
	}
	logger, report := pipeline.New(opts...)

	server, err := ingest.NewServer(ingest.Options{
		Dir:     *dir,
		APIKey:  *apiKey,
		Logger:  logger,
		Monitor: report.Monitor,
	})
	if err != nil {
		logger.Capture(err, "ingest server init failed", map[string]any{"dir": *dir})
		_ = logger.Close(context.Background())
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server,
		// No WriteTimeout: live tails hold their connection open.
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("ingest server listening", map[string]any{
			"addr":     *addr,
			"dir":      *dir,
			"auth":     *apiKey != "",
			"degraded": report.Degraded,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Capture(err, "http server error")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down ingest server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs error
	errs = multierr.Append(errs, httpServer.Shutdown(ctx))
	server.Close()
	if errs != nil {
		logger.Warn("shutdown incomplete", map[string]any{"error": errs.Error()})
	}
	logger.Info("ingest server stopped")
	_ = logger.Close(ctx)
}
