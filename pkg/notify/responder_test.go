package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/asset-agent/internal/testutil"
	"github.com/Sternrassler/asset-agent/pkg/clients"
)

func newHub(opener *testutil.RecordingOpener) *clients.Hub {
	return clients.NewHub(func(ctx context.Context, url string) (clients.Client, error) {
		c, err := opener.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, zerolog.Nop())
}

func TestResponder_FocusesMatchingClient(t *testing.T) {
	opener := &testutil.RecordingOpener{}
	hub := newHub(opener)

	other := testutil.NewFakeClient("other", "https://app.example.com/settings.html")
	main := testutil.NewFakeClient("main", "https://app.example.com/index.html")
	hub.Register(other)
	hub.Register(main)

	n := &testutil.FakeNotification{}
	outcome, err := NewResponder(hub, "", zerolog.Nop()).HandleClick(context.Background(), n)
	if err != nil {
		t.Fatalf("HandleClick failed: %v", err)
	}

	if outcome != OutcomeFocused {
		t.Errorf("outcome = %s, want %s", outcome, OutcomeFocused)
	}
	if main.FocusCalls() != 1 {
		t.Errorf("main focus calls = %d, want 1", main.FocusCalls())
	}
	if other.FocusCalls() != 0 {
		t.Errorf("other focus calls = %d, want 0", other.FocusCalls())
	}
	if opener.Count() != 0 {
		t.Errorf("windows opened = %d, want 0", opener.Count())
	}
	if n.Closed() != 1 {
		t.Errorf("notification closed %d times, want 1", n.Closed())
	}
}

func TestResponder_OpensWindowWhenNoMatch(t *testing.T) {
	opener := &testutil.RecordingOpener{}
	hub := newHub(opener)
	hub.Register(testutil.NewFakeClient("other", "https://app.example.com/settings.html"))

	n := &testutil.FakeNotification{}
	outcome, err := NewResponder(hub, "", zerolog.Nop()).HandleClick(context.Background(), n)
	if err != nil {
		t.Fatalf("HandleClick failed: %v", err)
	}

	if outcome != OutcomeOpened {
		t.Errorf("outcome = %s, want %s", outcome, OutcomeOpened)
	}
	if opener.Count() != 1 || opener.Opened[0] != "./index.html" {
		t.Errorf("opened = %v, want [./index.html]", opener.Opened)
	}
	if n.Closed() != 1 {
		t.Errorf("notification closed %d times, want 1", n.Closed())
	}
}

func TestResponder_OpenWithoutPageIsReportedAsRequested(t *testing.T) {
	hub := clients.NewHub(func(context.Context, string) (clients.Client, error) {
		return nil, nil
	}, zerolog.Nop())

	outcome, err := NewResponder(hub, "", zerolog.Nop()).HandleClick(context.Background(), &testutil.FakeNotification{})
	if err != nil {
		t.Fatalf("HandleClick failed: %v", err)
	}
	if outcome != OutcomeOpenRequested {
		t.Errorf("outcome = %s, want %s", outcome, OutcomeOpenRequested)
	}
	if all, _ := hub.MatchAll(context.Background(), clients.MatchOptions{IncludeUncontrolled: true}); len(all) != 0 {
		t.Errorf("MatchAll = %d clients, want 0", len(all))
	}
}

func TestResponder_MatchesUncontrolledClients(t *testing.T) {
	opener := &testutil.RecordingOpener{}
	hub := newHub(opener)
	main := testutil.NewFakeClient("main", "https://app.example.com/index.html?tab=2#top")
	hub.Register(main)

	outcome, err := NewResponder(hub, "", zerolog.Nop()).HandleClick(context.Background(), nil)
	if err != nil {
		t.Fatalf("HandleClick failed: %v", err)
	}
	if outcome != OutcomeFocused || main.FocusCalls() != 1 {
		t.Errorf("outcome = %s, focus calls = %d; want focused once", outcome, main.FocusCalls())
	}
}

func TestResponder_Errors(t *testing.T) {
	t.Run("focus failure", func(t *testing.T) {
		boom := errors.New("page gone")
		opener := &testutil.RecordingOpener{}
		hub := newHub(opener)
		main := testutil.NewFakeClient("main", "https://app.example.com/index.html")
		main.FocusErr = boom
		hub.Register(main)

		_, err := NewResponder(hub, "", zerolog.Nop()).HandleClick(context.Background(), nil)
		if !errors.Is(err, boom) {
			t.Errorf("HandleClick() error = %v, want %v", err, boom)
		}
		if opener.Count() != 0 {
			t.Errorf("windows opened = %d, want 0", opener.Count())
		}
	})

	t.Run("open failure", func(t *testing.T) {
		hub := clients.NewHub(nil, zerolog.Nop())
		_, err := NewResponder(hub, "", zerolog.Nop()).HandleClick(context.Background(), nil)
		if !errors.Is(err, clients.ErrNoOpener) {
			t.Errorf("HandleClick() error = %v, want ErrNoOpener", err)
		}
	})
}

func TestResponder_IsMainPage(t *testing.T) {
	tests := []struct {
		mainPage string
		location string
		want     bool
	}{
		{"./index.html", "https://app.example.com/index.html", true},
		{"./index.html", "https://app.example.com/app/index.html", true},
		{"./index.html", "https://app.example.com/index.html?x=1", true},
		{"./index.html", "https://app.example.com/", false},
		{"./index.html", "https://app.example.com/myindex.html", false},
		{"/app/", "https://app.example.com/app/", true},
		{"index.html", "https://app.example.com/index.html", true},
	}

	for _, tt := range tests {
		t.Run(tt.mainPage+" "+tt.location, func(t *testing.T) {
			r := NewResponder(nil, tt.mainPage, zerolog.Nop())
			if got := r.isMainPage(tt.location); got != tt.want {
				t.Errorf("isMainPage(%q) = %v, want %v", tt.location, got, tt.want)
			}
		})
	}
}
