// Package clients tracks the open application pages (Client Registrations)
// that the agent can claim, focus or open.
package clients

import (
	"context"
	"errors"
)

// ErrNoOpener is returned by OpenWindow when the host cannot open windows.
var ErrNoOpener = errors.New("no window opener configured")

// Client is one open application page.
type Client interface {
	ID() string
	URL() string
	Focus(ctx context.Context) error
}

// MatchOptions filters MatchAll.
type MatchOptions struct {
	// IncludeUncontrolled also returns pages not controlled by any generation.
	IncludeUncontrolled bool
}

// Registry is the host's view of open pages.
type Registry interface {
	// MatchAll returns open pages in registration order.
	MatchAll(ctx context.Context, opts MatchOptions) ([]Client, error)

	// Claim makes generation the controller of every open page.
	Claim(ctx context.Context, generation string) error

	// OpenWindow opens a new page at url.
	OpenWindow(ctx context.Context, url string) (Client, error)
}

// Opener opens a new window for OpenWindow.
type Opener func(ctx context.Context, url string) (Client, error)

// MessageHandler receives raw message payloads posted by pages.
type MessageHandler func(ctx context.Context, clientID string, payload string)
