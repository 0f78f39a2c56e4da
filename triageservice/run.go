// Package triageservice boots the triage HTTP service: configuration, store,
// classifier, embedder, matcher, broadcast hub, router, health checking and
// graceful shutdown.
package triageservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/triagehub/triagehub/internal/api"
	"github.com/triagehub/triagehub/internal/broadcast"
	"github.com/triagehub/triagehub/internal/classify"
	"github.com/triagehub/triagehub/internal/classify/keyword"
	"github.com/triagehub/triagehub/internal/classify/openai"
	"github.com/triagehub/triagehub/internal/config"
	"github.com/triagehub/triagehub/internal/embeddings"
	ollamaemb "github.com/triagehub/triagehub/internal/embeddings/ollama"
	"github.com/triagehub/triagehub/internal/health"
	"github.com/triagehub/triagehub/internal/ingest"
	"github.com/triagehub/triagehub/internal/logger"
	"github.com/triagehub/triagehub/internal/matcher"
	"github.com/triagehub/triagehub/internal/store"
	"github.com/triagehub/triagehub/internal/store/postgres"
	"github.com/triagehub/triagehub/internal/store/sqlite"
)

// reprocessInterval is how often the pending sweep runs.
const reprocessInterval = time.Minute

// Run starts the triage service HTTP server and blocks until shutdown or error.
func Run() error {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	log := logger.New("triage-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("ollama_url", cfg.OllamaURL).
		Str("embed_model", cfg.EmbedModel).
		Float64("match_threshold", cfg.MatchThreshold).
		Msg("Triage service starting")

	// Cancellable root context bound to SIGINT/SIGTERM.
	ctx, stop := newServerContext()
	defer stop()

	st, embedder, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	classifier := newClassifier(cfg, log)
	hub := broadcast.NewHub(cfg.EventBuffer, log)
	m := matcher.New(st, hub, cfg.MatchThreshold, log)
	coord := ingest.New(st, classifier, embedder, m, hub, log)

	svcHealth := startHealthCheckers(ctx, cfg, log, st, embedder)

	router := api.NewRouter(api.Deps{
		Store:              st,
		Coordinator:        coord,
		Hub:                hub,
		Health:             svcHealth,
		SlackSigningSecret: cfg.SlackSigningSecret,
		Log:                log,
	})

	// Block startup until dependencies report healthy; fail fast otherwise.
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	// Background sweep for messages parked by classifier or embedder outages.
	go runReprocessLoop(ctx, coord, log)

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs the store and embedder and enforces fail-fast
// on misconfiguration.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, embeddings.Provider, error) {
	st, err := newStore(ctx, cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store unavailable")
		return nil, nil, err
	}
	embedder := ollamaemb.New(cfg.OllamaURL, cfg.EmbedModel)
	return st, embedder, nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return sqlite.New(ctx, cfg.SQLitePath)
	case "postgres":
		return postgres.New(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

// newClassifier selects the remote model classifier when an API key is
// configured and the deterministic keyword classifier otherwise.
func newClassifier(cfg *config.Config, log zerolog.Logger) classify.Classifier {
	if cfg.ClassifierAPIKey != "" {
		log.Info().Str("model", cfg.ClassifierModel).Msg("using remote classifier")
		return openai.New(cfg.ClassifierBaseURL, cfg.ClassifierAPIKey, cfg.ClassifierModel)
	}
	log.Info().Msg("no classifier API key configured, using keyword classifier")
	return keyword.New()
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, embedder embeddings.Provider) *health.ServiceHealthChecker {
	probeTimeout := 2 * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	var checkers []health.Checker
	if pinger, ok := st.(health.HealthPinger); ok {
		c := health.NewPingChecker("store", pinger, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}
	if pinger, ok := embedder.(health.HealthPinger); ok {
		c := health.NewPingChecker("embedder", pinger, log, probeTimeout)
		go c.Start(ctx, interval)
		checkers = append(checkers, c)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

// runReprocessLoop periodically retries pending messages until shutdown.
func runReprocessLoop(ctx context.Context, coord *ingest.Coordinator, log zerolog.Logger) {
	ticker := time.NewTicker(reprocessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := coord.ReprocessPending(ctx); err != nil && ctx.Err() == nil {
				log.Error().Stack().Err(err).Msg("pending sweep failed")
			}
		}
	}
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// SSE connections are long-lived; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
