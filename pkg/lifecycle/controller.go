package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/asset-agent/pkg/cache"
	"github.com/Sternrassler/asset-agent/pkg/clients"
	"github.com/Sternrassler/asset-agent/pkg/version"
)

// Prometheus metrics for lifecycle transitions.
var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_lifecycle_transitions_total",
		Help: "Total lifecycle transitions by target state",
	}, []string{"state"})

	generationsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_generations_deleted_total",
		Help: "Total number of stale cache generations deleted during activate",
	})
)

// Installer performs the all-or-nothing add-all of a manifest into a cache.
type Installer interface {
	AddAll(ctx context.Context, c cache.Cache, base *url.URL, manifest []string) error
}

// Config holds the collaborators of one generation.
type Config struct {
	// Registry pins the generation id and its manifest
	Registry version.Registry

	// Storage is the cache store
	Storage cache.Storage

	// Installer fetches and stores the manifest
	Installer Installer

	// Clients is the host's page registry, claimed during activate
	Clients clients.Registry

	// BaseURL resolves relative manifest entries
	BaseURL *url.URL
}

// Controller is the lifecycle state machine of a single generation.
type Controller struct {
	cfg    Config
	logger zerolog.Logger

	mu          sync.RWMutex
	state       State
	skipWaiting bool
	cache       cache.Cache
}

// New creates a controller in StateNew.
func New(cfg Config, logger zerolog.Logger) (*Controller, error) {
	if cfg.Registry.ID() == "" {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Installer == nil {
		return nil, fmt.Errorf("installer is required")
	}
	if cfg.Clients == nil {
		return nil, fmt.Errorf("clients registry is required")
	}

	return &Controller{
		cfg:    cfg,
		logger: logger.With().Str("generation", cfg.Registry.ID()).Logger(),
		state:  StateNew,
	}, nil
}

// ID returns the generation identifier, which is also its cache name.
func (c *Controller) ID() string {
	return c.cfg.Registry.ID()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SkipWaiting reports whether the generation asked to activate without
// waiting for pages of the previous generation to close.
func (c *Controller) SkipWaiting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.skipWaiting
}

// Cache returns the generation's cache once Install has succeeded, else nil.
func (c *Controller) Cache() cache.Cache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateNew || c.state == StateInstalling || c.state == StateRedundant {
		return nil
	}
	return c.cache
}

// Install opens the generation's cache and stores the whole manifest.
// On failure the generation becomes redundant and will never activate.
func (c *Controller) Install(ctx context.Context) error {
	if err := c.transition(StateNew, StateInstalling); err != nil {
		return err
	}

	c.logger.Info().Int("assets", len(c.cfg.Registry.Manifest())).Msg("Installing generation")

	if err := c.install(ctx); err != nil {
		c.set(StateRedundant)
		c.logger.Error().Err(err).Msg("Install failed")
		return fmt.Errorf("%w: generation %s: %w", ErrInstallFailed, c.ID(), err)
	}

	c.mu.Lock()
	c.skipWaiting = true
	c.mu.Unlock()
	c.set(StateWaiting)

	c.logger.Info().Msg("Generation installed")
	return nil
}

func (c *Controller) install(ctx context.Context) error {
	generation, err := c.cfg.Storage.Open(ctx, c.ID())
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if err := c.cfg.Installer.AddAll(ctx, generation, c.cfg.BaseURL, c.cfg.Registry.Manifest()); err != nil {
		return err
	}

	c.mu.Lock()
	c.cache = generation
	c.mu.Unlock()
	return nil
}

// Activate deletes every cache whose name differs from this generation's id
// and claims all open pages. A failure leaves the generation waiting so the
// host may retry.
func (c *Controller) Activate(ctx context.Context) error {
	if err := c.transition(StateWaiting, StateActivating); err != nil {
		return err
	}

	c.logger.Info().Msg("Activating generation")

	if err := c.activate(ctx); err != nil {
		c.set(StateWaiting)
		c.logger.Error().Err(err).Msg("Activate failed")
		return fmt.Errorf("%w: generation %s: %w", ErrActivateFailed, c.ID(), err)
	}

	c.set(StateActive)
	c.logger.Info().Msg("Generation active")
	return nil
}

func (c *Controller) activate(ctx context.Context) error {
	names, err := c.cfg.Storage.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}

	for _, name := range names {
		if name == c.ID() {
			continue
		}
		if _, err := c.cfg.Storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete stale cache %q: %w", name, err)
		}
		generationsDeleted.Inc()
		c.logger.Info().Str("stale_generation", name).Msg("Deleted stale cache")
	}

	if err := c.cfg.Clients.Claim(ctx, c.ID()); err != nil {
		return fmt.Errorf("claim clients: %w", err)
	}
	return nil
}

// Supersede marks an active generation as replaced by a newer one.
func (c *Controller) Supersede() error {
	if err := c.transition(StateActive, StateSuperseded); err != nil {
		return err
	}
	c.logger.Info().Msg("Generation superseded")
	return nil
}

func (c *Controller) transition(from, to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != from {
		return &TransitionError{From: c.state, To: to}
	}
	c.state = to
	transitionsTotal.WithLabelValues(string(to)).Inc()
	return nil
}

func (c *Controller) set(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = to
	transitionsTotal.WithLabelValues(string(to)).Inc()
}
