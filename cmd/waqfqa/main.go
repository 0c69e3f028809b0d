// Waqfqa answers questions about waqf law in English and Urdu over HTTP.
//
// The daemon indexes the bundled reference PDFs, answers corpus questions
// with cited sources and runs free chat sessions that can carry an uploaded
// document.
//
// Configuration comes from defaults, an optional YAML file and WAQFQA_*
// environment variables. See internal/config for details. The OpenAI API key
// is required; without it the daemon refuses to start.
//
// Usage:
//
//	# Start with the default config file
//	OPENAI_API_KEY=sk-... waqfqa
//
//	# Use an explicit config file
//	waqfqa --config /etc/waqfqa/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/waqfqa/internal/completion"
	"github.com/fyrsmithlabs/waqfqa/internal/config"
	"github.com/fyrsmithlabs/waqfqa/internal/conversation"
	"github.com/fyrsmithlabs/waqfqa/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/waqfqa/internal/http"
	"github.com/fyrsmithlabs/waqfqa/internal/loader"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
	"github.com/fyrsmithlabs/waqfqa/internal/logging"
	"github.com/fyrsmithlabs/waqfqa/internal/rag"
	"github.com/fyrsmithlabs/waqfqa/internal/splitter"
	"github.com/fyrsmithlabs/waqfqa/internal/telemetry"
	"github.com/fyrsmithlabs/waqfqa/internal/upload"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/waqfqa/config.yaml)")
	flag.Parse()

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "version":
			printVersion()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			fmt.Fprintf(os.Stderr, "usage: waqfqa [--config path] [version]\n")
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("waqfqa by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
// Startup order:
//  1. Loads .env
//  2. Loads and validates configuration
//  3. Initializes telemetry, then the logger
//  4. Builds the loader, splitter, provider clients and services
//  5. Warms both corpora when corpus.eager is set
//  6. Serves HTTP until ctx is cancelled, then shuts down gracefully
func run(ctx context.Context, configPath string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.ForceFlush(shutdownCtx); err != nil {
			log.Printf("telemetry flush failed: %v", err)
		}
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting waqfqa",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", tel.IsEnabled()),
		zap.Bool("eager", cfg.Corpus.Eager),
		logging.Secret("openai_api_key", cfg.OpenAI.APIKey),
	)

	a, err := newApp(cfg, logger, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	if cfg.Corpus.Eager {
		a.warm(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	provider := tel.LoggerProvider()
	logCfg, err := logging.FromSettings(cfg.Logging, provider != nil)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(logCfg, provider)
}

// app holds the wired services behind the HTTP server.
type app struct {
	rag    *rag.Service
	server *httpserver.Server
	logger *logging.Logger
}

// newApp builds every dependency. Nothing here touches the network or the
// corpus files; corpora are built by warm or on first question.
func newApp(cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry) (*app, error) {
	zl := logger.Underlying()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	split, err := splitter.New(cfg.Splitter.ChunkSize, cfg.Splitter.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	load := loader.New(zl.Named("loader"))

	// One limiter paces both provider clients against the same account.
	limiter := newLimiter(cfg.OpenAI.RequestsPerSecond, cfg.OpenAI.Burst)

	embedder, err := embeddings.NewOpenAI(
		embeddings.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.EmbeddingModel,
			APIKey:  cfg.OpenAI.APIKey.Value(),
		},
		embeddings.WithLimiter(limiter),
		embeddings.WithMetrics(embeddings.NewMetricsWithProvider(tel.MeterProvider(), zl)),
		embeddings.WithLogger(zl.Named("embeddings")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	completer, err := completion.NewOpenAI(
		completion.Config{
			APIKey:  cfg.OpenAI.APIKey.Value(),
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.ChatModel,
		},
		completion.WithLimiter(limiter),
		completion.WithMetrics(completion.NewMetrics(registry)),
		completion.WithLogger(zl.Named("completion")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	ragSvc, err := rag.New(rag.Config{
		Corpora: map[locale.Language]string{
			locale.English: cfg.Corpus.EnglishPath,
			locale.Urdu:    cfg.Corpus.UrduPath,
		},
		Loader:    load,
		Splitter:  split,
		Embedder:  embedder,
		Completer: completer,
		TopK:      cfg.Retrieval.TopK,
		Params:    completion.Params{Model: cfg.OpenAI.RAGModel, Temperature: 0},
		Metrics:   rag.NewMetrics(registry),
		Logger:    zl.Named("rag"),
	})
	if err != nil {
		return nil, err
	}

	chat := completion.NewChatService(completer, conversation.NewStore(), completion.ChatConfig{
		Model:       cfg.OpenAI.ChatModel,
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
		Window:      cfg.Chat.HistoryWindow,
	}, zl.Named("chat"))

	uploads := upload.NewProcessor(upload.Config{
		MaxBytes:        cfg.Upload.MaxBytes,
		MaxContextChars: cfg.Upload.MaxContextChars,
	}, load, split, zl.Named("upload"))

	srv, err := httpserver.NewServer(httpserver.Deps{
		Answerer:  ragSvc,
		Chatter:   chat,
		Documents: uploads,
		Gatherer:  registry,
		Metrics:   httpserver.NewHTTPMetricsWithProvider(tel.MeterProvider(), zl),
		Telemetry: tel,
	}, logger.Named("http"), &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		BodyLimit: bodyLimit(cfg.Upload.MaxBytes),
	})
	if err != nil {
		return nil, err
	}

	return &app{rag: ragSvc, server: srv, logger: logger}, nil
}

// warm builds both corpora. A failed language is logged and stays failed; the
// daemon keeps serving the other.
func (a *app) warm(ctx context.Context) {
	start := time.Now()
	err := a.rag.Warm(ctx)
	for _, lang := range locale.All {
		a.logger.Info(ctx, "corpus status",
			zap.String("language", lang.String()),
			zap.String("status", string(a.rag.Status(lang))),
		)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		a.logger.Error(ctx, "corpus warm-up incomplete", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	a.logger.Info(ctx, "corpora ready", zap.Duration("duration", time.Since(start)))
}

// newLimiter returns an unlimited limiter for rps <= 0.
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// bodyLimit leaves 1MB of headroom over the upload limit for multipart
// framing, so oversized files reach the upload check.
func bodyLimit(maxUpload int64) string {
	return strconv.FormatInt(maxUpload>>10+1024, 10) + "K"
}
