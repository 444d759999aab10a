package testutil

import (
	"context"
	"sync"
)

// FakeClient is an open page that records focus calls.
type FakeClient struct {
	ClientID  string
	Location  string
	FocusErr  error
	mu        sync.Mutex
	focusCall int
}

// NewFakeClient creates a page with the given id and location.
func NewFakeClient(id, location string) *FakeClient {
	return &FakeClient{ClientID: id, Location: location}
}

// ID implements clients.Client.
func (c *FakeClient) ID() string { return c.ClientID }

// URL implements clients.Client.
func (c *FakeClient) URL() string { return c.Location }

// Focus implements clients.Client.
func (c *FakeClient) Focus(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focusCall++
	return c.FocusErr
}

// FocusCalls returns the number of focus calls.
func (c *FakeClient) FocusCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focusCall
}

// FakeNotification records dismissal.
type FakeNotification struct {
	mu     sync.Mutex
	closed int
}

// Close implements notify.Notification.
func (n *FakeNotification) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed++
}

// Closed reports how many times Close was called.
func (n *FakeNotification) Closed() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// RecordingOpener returns an opener that records opened URLs and returns a
// FakeClient for each.
type RecordingOpener struct {
	mu     sync.Mutex
	Opened []string
	Err    error
}

// Open matches clients.Opener.
func (o *RecordingOpener) Open(_ context.Context, url string) (*FakeClient, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	o.Opened = append(o.Opened, url)
	return NewFakeClient("opened-"+url, url), nil
}

// Count returns the number of opened windows.
func (o *RecordingOpener) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Opened)
}
