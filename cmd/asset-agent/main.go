// Command asset-agent serves an application origin through the offline
// asset agent: manifest assets come from the active cache generation, and
// everything else is proxied to the origin.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/asset-agent/pkg/agent"
	"github.com/Sternrassler/asset-agent/pkg/cache"
	"github.com/Sternrassler/asset-agent/pkg/clients"
	"github.com/Sternrassler/asset-agent/pkg/logging"
	"github.com/Sternrassler/asset-agent/pkg/metrics"
	"github.com/Sternrassler/asset-agent/pkg/version"
)

type config struct {
	Port                string        `env:"PORT" envDefault:"8080"`
	OriginURL           string        `env:"ORIGIN_URL,notEmpty"`
	RedisURL            string        `env:"REDIS_URL"`
	RedisPrefix         string        `env:"REDIS_PREFIX" envDefault:"agent:"`
	LogLevel            string        `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty           bool          `env:"LOG_PRETTY" envDefault:"false"`
	HeartbeatMarker     string        `env:"HEARTBEAT_MARKER" envDefault:"/__agent_heartbeat"`
	MainPage            string        `env:"MAIN_PAGE" envDefault:"./index.html"`
	KeepalivePeriod     time.Duration `env:"KEEPALIVE_PERIOD" envDefault:"20s"`
	PrefetchConcurrency int           `env:"PREFETCH_CONCURRENCY" envDefault:"6"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "asset-agent: %v\n", err)
		os.Exit(2)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.Setup(logging.Config{
		Level:   level,
		Pretty:  cfg.LogPretty,
		Service: "asset-agent",
		Output:  os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg config, logger zerolog.Logger) error {
	origin, err := url.Parse(cfg.OriginURL)
	if err != nil || !origin.IsAbs() {
		return fmt.Errorf("invalid ORIGIN_URL %q", cfg.OriginURL)
	}
	base := baseURL(origin)

	storage, closeStorage, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage()

	agentCfg := agent.DefaultConfig(storage, base)
	agentCfg.HeartbeatMarker = cfg.HeartbeatMarker
	agentCfg.MainPage = cfg.MainPage
	agentCfg.KeepalivePeriod = cfg.KeepalivePeriod
	agentCfg.Prefetch.MaxConcurrency = cfg.PrefetchConcurrency
	agentCfg.Opener = windowOpener(base, logger)

	a, err := agent.New(agentCfg)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	defer a.Close()

	reg := version.Default()
	if err := a.Deploy(ctx, reg); err != nil {
		// The previous process's generation may still be in storage; keep
		// serving pass-through until the next deploy succeeds.
		logger.Error().Err(err).Str("generation", reg.ID()).Msg("Initial deploy failed")
	} else {
		logger.Info().Str("generation", reg.ID()).Msg("Generation active")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newMux(a, origin, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("origin", origin.String()).Msg("Starting asset agent")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// baseURL is origin as a directory, so that "./index.html" resolves to the
// same URL the proxy requests for "/index.html".
func baseURL(origin *url.URL) *url.URL {
	base := *origin
	base.RawQuery, base.Fragment = "", ""
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return &base
}

func newStorage(ctx context.Context, cfg config, logger zerolog.Logger) (cache.Storage, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, using in-memory storage")
		return cache.NewMemoryStorage(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")

	return cache.NewRedisStorage(redisClient, cfg.RedisPrefix), func() { redisClient.Close() }, nil
}

// windowOpener has no window to open server-side. It logs the resolved
// location and returns no page, so clicks report "open_requested"; the page
// registers itself once it connects.
func windowOpener(base *url.URL, logger zerolog.Logger) clients.Opener {
	return func(_ context.Context, target string) (clients.Client, error) {
		ref, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse window url: %w", err)
		}
		logger.Info().Str("url", base.ResolveReference(ref).String()).Msg("Window open requested")
		return nil, nil
	}
}

func newMux(a *agent.Agent, origin *url.URL, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(a))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /_agent/clients", a.Clients())
	mux.HandleFunc("POST /_agent/notifications/click", notificationClickHandler(a))
	mux.Handle("/", newProxy(a, origin, logger))
	return mux
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func readyHandler(a *agent.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := a.Ready(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// dismissal satisfies notify.Notification for clicks relayed over HTTP; the
// notification itself lives in the caller's UI.
type dismissal struct{}

func (dismissal) Close() {}

func notificationClickHandler(a *agent.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := a.HandleNotificationClick(r.Context(), dismissal{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"outcome": string(outcome)})
	}
}

// newProxy forwards to origin with the agent as transport, so manifest
// assets are answered from the active generation.
func newProxy(a *agent.Agent, origin *url.URL, logger zerolog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.Out.Host = origin.Host
		},
		Transport: a,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}
}
