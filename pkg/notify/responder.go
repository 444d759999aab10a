// Package notify focuses or opens the application window when the user
// clicks a notification.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/asset-agent/pkg/clients"
)

var clicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agent_notification_clicks_total",
	Help: "Total notification clicks by outcome",
}, []string{"outcome"})

// DefaultMainPage is the application's main page.
const DefaultMainPage = "./index.html"

// Outcome is what a click resulted in.
type Outcome string

const (
	OutcomeFocused Outcome = "focused"
	OutcomeOpened  Outcome = "opened"

	// OutcomeOpenRequested means the opener accepted the request but
	// returned no page; the page registers itself when it loads.
	OutcomeOpenRequested Outcome = "open_requested"
)

// Notification is the clicked notification.
type Notification interface {
	Close()
}

// Responder handles notification clicks.
type Responder struct {
	clients  clients.Registry
	mainPage string
	logger   zerolog.Logger
}

// NewResponder creates a responder for mainPage (DefaultMainPage if empty).
func NewResponder(registry clients.Registry, mainPage string, logger zerolog.Logger) *Responder {
	if mainPage == "" {
		mainPage = DefaultMainPage
	}
	return &Responder{
		clients:  registry,
		mainPage: mainPage,
		logger:   logger,
	}
}

// HandleClick dismisses n, then focuses the first open page showing the
// main page, or opens a new one if none does. Exactly one of the two happens.
// OutcomeOpenRequested reports an open whose page is not yet known.
func (r *Responder) HandleClick(ctx context.Context, n Notification) (Outcome, error) {
	if n != nil {
		n.Close()
	}

	open, err := r.clients.MatchAll(ctx, clients.MatchOptions{IncludeUncontrolled: true})
	if err != nil {
		return "", fmt.Errorf("match clients: %w", err)
	}

	for _, c := range open {
		if !r.isMainPage(c.URL()) {
			continue
		}
		if err := c.Focus(ctx); err != nil {
			return "", fmt.Errorf("focus client %s: %w", c.ID(), err)
		}
		clicksTotal.WithLabelValues(string(OutcomeFocused)).Inc()
		r.logger.Debug().Str("client_id", c.ID()).Msg("Focused existing window")
		return OutcomeFocused, nil
	}

	opened, err := r.clients.OpenWindow(ctx, r.mainPage)
	if err != nil {
		return "", fmt.Errorf("open main page: %w", err)
	}

	outcome := OutcomeOpened
	if opened == nil {
		outcome = OutcomeOpenRequested
	}
	clicksTotal.WithLabelValues(string(outcome)).Inc()
	r.logger.Debug().Str("url", r.mainPage).Str("outcome", string(outcome)).Msg("Opened new window")
	return outcome, nil
}

// isMainPage reports whether a page location ends with the main page path,
// ignoring query and fragment.
func (r *Responder) isMainPage(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	suffix := strings.TrimPrefix(r.mainPage, ".")
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	return strings.HasSuffix(u.Path, suffix)
}
