// Package liveness keeps the agent scheduled so the host does not suspend it
// for being idle.
//
// Nothing here has a correctness role. Every action exists only for its
// side effect on the host: IdleResetter.ResetIdle. If the host suspends the
// agent anyway, all durable state lives in the cache store and the next
// event re-instantiates the agent.
package liveness

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	keepaliveTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_keepalive_ticks_total",
		Help: "Total number of keepalive timer ticks",
	})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_messages_total",
		Help: "Total number of page messages by acceptance",
	}, []string{"accepted"})
)

const (
	// DefaultPeriod is the keepalive timer period.
	DefaultPeriod = 20 * time.Second

	// PingMessage is the only message payload the listener accepts.
	PingMessage = "ping"
)

// IdleResetter is the host's idle-suspend countdown.
type IdleResetter interface {
	ResetIdle()
}

// Keepalive is the agent's background liveness task: a repeating no-op
// timer plus the page message listener.
type Keepalive struct {
	host   IdleResetter
	period time.Duration
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewKeepalive creates the task. It does nothing until Start.
func NewKeepalive(host IdleResetter, period time.Duration, logger zerolog.Logger) (*Keepalive, error) {
	if host == nil {
		return nil, fmt.Errorf("idle resetter is required")
	}
	if period <= 0 {
		period = DefaultPeriod
	}

	k := &Keepalive{
		host:   host,
		period: period,
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		logger: logger,
	}

	if _, err := k.cron.AddFunc(fmt.Sprintf("@every %s", period), k.tick); err != nil {
		return nil, fmt.Errorf("schedule keepalive: %w", err)
	}

	return k, nil
}

// Start launches the timer. It is called once at agent instantiation and
// never needs a matching Stop: the host may dispose of the agent at any time.
func (k *Keepalive) Start() {
	k.cron.Start()
	k.logger.Debug().Dur("period", k.period).Msg("Keepalive started")
}

// Stop halts the timer and returns a context done once a running tick ends.
func (k *Keepalive) Stop() context.Context {
	return k.cron.Stop()
}

// Period returns the timer period.
func (k *Keepalive) Period() time.Duration {
	return k.period
}

// tick does no observable work; scheduling it resets the idle countdown.
func (k *Keepalive) tick() {
	keepaliveTicks.Inc()
	k.host.ResetIdle()
}

// HandleMessage is the page message listener. A "ping" payload is accepted
// and resets the idle countdown; nothing is replied and no state changes.
// Any other payload is ignored. It reports whether the payload was accepted.
func (k *Keepalive) HandleMessage(_ context.Context, payload string) bool {
	if payload != PingMessage {
		messagesTotal.WithLabelValues("false").Inc()
		k.logger.Debug().Str("payload", payload).Msg("Ignoring unknown message")
		return false
	}

	messagesTotal.WithLabelValues("true").Inc()
	k.host.ResetIdle()
	return true
}
