// Package agent wires the cache lifecycle, fetch interception, liveness
// heuristics and notification handling into one background agent.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/asset-agent/pkg/cache"
	"github.com/Sternrassler/asset-agent/pkg/clients"
	"github.com/Sternrassler/asset-agent/pkg/interceptor"
	"github.com/Sternrassler/asset-agent/pkg/lifecycle"
	"github.com/Sternrassler/asset-agent/pkg/logging"
	"github.com/Sternrassler/asset-agent/pkg/liveness"
	"github.com/Sternrassler/asset-agent/pkg/notify"
	"github.com/Sternrassler/asset-agent/pkg/prefetch"
	"github.com/Sternrassler/asset-agent/pkg/version"
)

// Event names consumed from the host.
const (
	EventInstall           = "install"
	EventActivate          = "activate"
	EventFetch             = "fetch"
	EventMessage           = "message"
	EventNotificationClick = "notificationclick"
)

var eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agent_events_total",
	Help: "Total host events handled by the agent",
}, []string{"event"})

// Config holds the agent configuration.
type Config struct {
	// Storage is the persistent cache store
	Storage cache.Storage

	// BaseURL is the application origin; relative manifest entries and the
	// main page resolve against it
	BaseURL *url.URL

	// Network performs real requests (manifest prefetch and fallback fetches)
	Network *http.Client

	// Opener opens new windows for notification clicks (nil: unsupported)
	Opener clients.Opener

	// Host is the idle-suspend countdown reset by liveness activity
	Host liveness.IdleResetter

	// HeartbeatMarker is the reserved heartbeat URL substring
	HeartbeatMarker string

	// MainPage is the application's main page
	MainPage string

	// KeepalivePeriod is the liveness timer period
	KeepalivePeriod time.Duration

	// Prefetch configures the manifest batch fetcher
	Prefetch prefetch.Config
}

// DefaultConfig returns the default configuration.
func DefaultConfig(storage cache.Storage, baseURL *url.URL) Config {
	return Config{
		Storage:         storage,
		BaseURL:         baseURL,
		Network:         &http.Client{Timeout: 30 * time.Second},
		Host:            liveness.NewActivityClock(),
		HeartbeatMarker: interceptor.DefaultHeartbeatMarker,
		MainPage:        notify.DefaultMainPage,
		KeepalivePeriod: liveness.DefaultPeriod,
		Prefetch:        prefetch.DefaultConfig(),
	}
}

// generation is an activated controller and its opened cache.
type generation struct {
	controller *lifecycle.Controller
	cache      cache.Cache
}

// Agent is the background agent.
type Agent struct {
	cfg         Config
	hub         *clients.Hub
	fetcher     *prefetch.BatchFetcher
	interceptor *interceptor.Interceptor
	keepalive   *liveness.Keepalive
	responder   *notify.Responder
	logger      zerolog.Logger

	deployMu sync.Mutex
	active   atomic.Pointer[generation]
}

// New creates the agent and starts its keepalive task.
func New(cfg Config) (*Agent, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.BaseURL == nil || !cfg.BaseURL.IsAbs() {
		return nil, fmt.Errorf("absolute base URL is required")
	}
	if cfg.Network == nil {
		cfg.Network = http.DefaultClient
	}
	if cfg.Host == nil {
		cfg.Host = liveness.NewActivityClock()
	}

	logger := logging.NewLogger("agent")

	a := &Agent{
		cfg:     cfg,
		logger:  logger,
		hub:     clients.NewHub(cfg.Opener, logging.NewLogger("clients")),
		fetcher: prefetch.NewBatchFetcher(cfg.Network, cfg.Prefetch, logging.NewLogger("prefetch")),
	}

	network := cfg.Network.Transport
	if network == nil {
		network = http.DefaultTransport
	}
	a.interceptor = interceptor.New(network, a.activeCache, cfg.HeartbeatMarker,
		logging.NewLogger("interceptor"))

	keepalive, err := liveness.NewKeepalive(cfg.Host, cfg.KeepalivePeriod,
		logging.NewLogger("liveness"))
	if err != nil {
		return nil, fmt.Errorf("create keepalive: %w", err)
	}
	a.keepalive = keepalive

	a.responder = notify.NewResponder(a.hub, cfg.MainPage, logging.NewLogger("notify"))
	a.hub.OnMessage(func(ctx context.Context, _ string, payload string) {
		a.HandleMessage(ctx, payload)
	})

	a.keepalive.Start()

	return a, nil
}

// Close stops the keepalive task.
func (a *Agent) Close() error {
	<-a.keepalive.Stop().Done()
	return nil
}

// Clients returns the page registry; mount it as an HTTP handler to accept
// page connections.
func (a *Agent) Clients() *clients.Hub {
	return a.hub
}

// ActiveGeneration returns the active generation id, or "" before the first
// activation.
func (a *Agent) ActiveGeneration() string {
	if g := a.active.Load(); g != nil {
		return g.controller.ID()
	}
	return ""
}

func (a *Agent) activeCache() cache.Cache {
	if g := a.active.Load(); g != nil {
		return g.cache
	}
	return nil
}

// Install runs the install transition for reg and returns its controller.
// Install, Activate and Deploy are serialized.
func (a *Agent) Install(ctx context.Context, reg version.Registry) (*lifecycle.Controller, error) {
	a.deployMu.Lock()
	defer a.deployMu.Unlock()
	return a.install(ctx, reg)
}

func (a *Agent) install(ctx context.Context, reg version.Registry) (*lifecycle.Controller, error) {
	eventsTotal.WithLabelValues(EventInstall).Inc()

	controller, err := lifecycle.New(lifecycle.Config{
		Registry:  reg,
		Storage:   a.cfg.Storage,
		Installer: a.fetcher,
		Clients:   a.hub,
		BaseURL:   a.cfg.BaseURL,
	}, logging.NewLogger("lifecycle"))
	if err != nil {
		return nil, fmt.Errorf("create lifecycle controller: %w", err)
	}

	if err := controller.Install(ctx); err != nil {
		return nil, err
	}
	return controller, nil
}

// Activate promotes an installed controller and supersedes the previous
// active generation.
func (a *Agent) Activate(ctx context.Context, controller *lifecycle.Controller) error {
	a.deployMu.Lock()
	defer a.deployMu.Unlock()
	return a.activate(ctx, controller)
}

// activate serves from the installed cache before stale generations are
// purged, so no request falls through to the network mid-swap. On failure
// the previous generation is restored if its store still exists.
func (a *Agent) activate(ctx context.Context, controller *lifecycle.Controller) error {
	eventsTotal.WithLabelValues(EventActivate).Inc()

	if state := controller.State(); state != lifecycle.StateWaiting {
		return &lifecycle.TransitionError{From: state, To: lifecycle.StateActivating}
	}
	installed := controller.Cache()
	if installed == nil {
		return fmt.Errorf("generation %q has no installed cache", controller.ID())
	}

	next := &generation{controller: controller, cache: installed}
	prev := a.active.Swap(next)

	if err := controller.Activate(ctx); err != nil {
		a.restore(ctx, prev, next)
		return err
	}

	if prev != nil && prev.controller != controller {
		if err := prev.controller.Supersede(); err != nil {
			a.logger.Warn().Err(err).Str("generation", prev.controller.ID()).Msg("Failed to supersede previous generation")
		}
	}
	return nil
}

func (a *Agent) restore(ctx context.Context, prev, next *generation) {
	if prev != nil {
		exists, err := a.cfg.Storage.Has(ctx, prev.controller.ID())
		if err == nil && !exists {
			a.logger.Warn().
				Str("generation", next.controller.ID()).
				Str("stale_generation", prev.controller.ID()).
				Msg("Previous generation already purged, serving the installed one until activate is retried")
			if err := prev.controller.Supersede(); err != nil {
				a.logger.Warn().Err(err).Str("generation", prev.controller.ID()).Msg("Failed to supersede previous generation")
			}
			return
		}
	}
	a.active.CompareAndSwap(next, prev)
}

// Deploy installs reg and, since installs skip waiting, activates it right
// away. Deploying the id that is already active is a no-op; an id left
// serving by a failed activate is installed again.
func (a *Agent) Deploy(ctx context.Context, reg version.Registry) error {
	a.deployMu.Lock()
	defer a.deployMu.Unlock()

	if g := a.active.Load(); g != nil && g.controller.ID() == reg.ID() && g.controller.State() == lifecycle.StateActive {
		a.logger.Debug().Str("generation", reg.ID()).Msg("Generation already active")
		return nil
	}

	controller, err := a.install(ctx, reg)
	if err != nil {
		return err
	}

	if !controller.SkipWaiting() {
		return nil
	}
	return a.activate(ctx, controller)
}

// RoundTrip handles a fetch event.
func (a *Agent) RoundTrip(req *http.Request) (*http.Response, error) {
	eventsTotal.WithLabelValues(EventFetch).Inc()
	return a.interceptor.RoundTrip(req)
}

// HandleMessage handles a message event from a page.
func (a *Agent) HandleMessage(ctx context.Context, payload string) bool {
	eventsTotal.WithLabelValues(EventMessage).Inc()
	return a.keepalive.HandleMessage(ctx, payload)
}

// HandleNotificationClick handles a notification click event.
func (a *Agent) HandleNotificationClick(ctx context.Context, n notify.Notification) (notify.Outcome, error) {
	eventsTotal.WithLabelValues(EventNotificationClick).Inc()
	return a.responder.HandleClick(ctx, n)
}

// Ready reports whether the store is reachable and a generation is active.
func (a *Agent) Ready(ctx context.Context) error {
	if err := a.cfg.Storage.Ping(ctx); err != nil {
		return fmt.Errorf("storage unavailable: %w", err)
	}
	if a.ActiveGeneration() == "" {
		return fmt.Errorf("no active generation")
	}
	return nil
}
