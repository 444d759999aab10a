package liveness

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingHost struct {
	resets atomic.Int64
}

func (h *countingHost) ResetIdle() {
	h.resets.Add(1)
}

func TestNewKeepalive(t *testing.T) {
	tests := []struct {
		name       string
		host       IdleResetter
		period     time.Duration
		wantPeriod time.Duration
		wantErr    bool
	}{
		{
			name:       "default period",
			host:       &countingHost{},
			wantPeriod: DefaultPeriod,
		},
		{
			name:       "custom period",
			host:       &countingHost{},
			period:     5 * time.Second,
			wantPeriod: 5 * time.Second,
		},
		{
			name:    "nil host",
			host:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewKeepalive(tt.host, tt.period, zerolog.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewKeepalive() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if k.Period() != tt.wantPeriod {
				t.Errorf("Period() = %v, want %v", k.Period(), tt.wantPeriod)
			}
			if entries := k.cron.Entries(); len(entries) != 1 {
				t.Errorf("scheduled entries = %d, want 1", len(entries))
			}
		})
	}
}

func TestKeepalive_Tick(t *testing.T) {
	host := &countingHost{}
	k, err := NewKeepalive(host, DefaultPeriod, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeepalive failed: %v", err)
	}

	k.tick()
	k.tick()

	if got := host.resets.Load(); got != 2 {
		t.Errorf("idle resets = %d, want 2", got)
	}
}

func TestKeepalive_StartFires(t *testing.T) {
	host := &countingHost{}
	k, err := NewKeepalive(host, time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewKeepalive failed: %v", err)
	}

	k.Start()
	defer k.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for host.resets.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if host.resets.Load() == 0 {
		t.Error("keepalive timer did not fire within 3s")
	}
}

func TestKeepalive_HandleMessage(t *testing.T) {
	tests := []struct {
		payload    string
		want       bool
		wantResets int64
	}{
		{payload: "ping", want: true, wantResets: 1},
		{payload: "PING", want: false},
		{payload: "pong", want: false},
		{payload: "", want: false},
		{payload: `"ping"`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			host := &countingHost{}
			k, _ := NewKeepalive(host, DefaultPeriod, zerolog.Nop())

			if got := k.HandleMessage(context.Background(), tt.payload); got != tt.want {
				t.Errorf("HandleMessage(%q) = %v, want %v", tt.payload, got, tt.want)
			}
			if got := host.resets.Load(); got != tt.wantResets {
				t.Errorf("idle resets = %d, want %d", got, tt.wantResets)
			}
		})
	}
}

func TestActivityClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := &ActivityClock{now: func() time.Time { return now }}
	clock.ResetIdle()

	now = now.Add(15 * time.Second)
	if got := clock.IdleFor(); got != 15*time.Second {
		t.Errorf("IdleFor() = %v, want 15s", got)
	}

	clock.ResetIdle()
	if got := clock.IdleFor(); got != 0 {
		t.Errorf("IdleFor() after reset = %v, want 0", got)
	}
	if !clock.LastActivity().Equal(now) {
		t.Errorf("LastActivity() = %v, want %v", clock.LastActivity(), now)
	}
}
