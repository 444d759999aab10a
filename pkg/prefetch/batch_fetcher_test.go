package prefetch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/asset-agent/internal/testutil"
	"github.com/Sternrassler/asset-agent/pkg/cache"
)

func newOrigin(t *testing.T) (*testutil.MockOrigin, *url.URL) {
	t.Helper()
	origin := testutil.NewMockOrigin()
	t.Cleanup(origin.Close)

	origin.SetAsset("/index.html", "text/html", "<html>index</html>")
	origin.SetAsset("/style.css", "text/css", "body{}")

	base, err := url.Parse(origin.URL() + "/")
	if err != nil {
		t.Fatalf("parse origin URL: %v", err)
	}
	return origin, base
}

func TestResolve(t *testing.T) {
	base, _ := url.Parse("https://app.example.com/app/")

	tests := []struct {
		name     string
		base     *url.URL
		manifest []string
		want     []string
		wantErr  bool
	}{
		{
			name:     "relative and absolute entries",
			base:     base,
			manifest: []string{"./index.html", "style.css", "https://cdn.example.net/lib.js"},
			want: []string{
				"https://app.example.com/app/index.html",
				"https://app.example.com/app/style.css",
				"https://cdn.example.net/lib.js",
			},
		},
		{
			name:     "root relative entry",
			base:     base,
			manifest: []string{"/favicon.ico"},
			want:     []string{"https://app.example.com/favicon.ico"},
		},
		{
			name:     "relative entry without base",
			base:     nil,
			manifest: []string{"./index.html"},
			wantErr:  true,
		},
		{
			name:     "unparsable entry",
			base:     base,
			manifest: []string{"http://[::1"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.base, tt.manifest)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Resolve() returned %d URLs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Errorf("Resolve()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBatchFetcher_AddAll(t *testing.T) {
	origin, base := newOrigin(t)
	fetcher := NewBatchFetcher(origin.Client(), DefaultConfig(), zerolog.Nop())

	storage := cache.NewMemoryStorage()
	ctx := context.Background()
	c, _ := storage.Open(ctx, "v1")

	if err := fetcher.AddAll(ctx, c, base, []string{"./index.html", "./style.css"}); err != nil {
		t.Fatalf("AddAll failed: %v", err)
	}

	if n, _ := c.Len(ctx); n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}

	u, _ := url.Parse(origin.URL() + "/index.html")
	entry, err := c.Match(ctx, cache.KeyFor(http.MethodGet, u))
	if err != nil {
		t.Fatalf("Match(index.html) failed: %v", err)
	}
	if string(entry.Data) != "<html>index</html>" {
		t.Errorf("Data = %q", entry.Data)
	}
	if entry.URL != u.String() {
		t.Errorf("URL = %q, want %q", entry.URL, u.String())
	}
}

func TestBatchFetcher_AddAllIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name     string
		manifest []string
		setup    func(o *testutil.MockOrigin)
	}{
		{
			name:     "missing asset",
			manifest: []string{"./index.html", "./missing.js"},
		},
		{
			name:     "server error",
			manifest: []string{"./index.html", "./broken.css"},
			setup: func(o *testutil.MockOrigin) {
				o.SetResponse("/broken.css", testutil.MockResponse{StatusCode: http.StatusInternalServerError})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origin, base := newOrigin(t)
			if tt.setup != nil {
				tt.setup(origin)
			}
			fetcher := NewBatchFetcher(origin.Client(), Config{MaxConcurrency: 1}, zerolog.Nop())

			storage := cache.NewMemoryStorage()
			ctx := context.Background()
			c, _ := storage.Open(ctx, "v1")

			err := fetcher.AddAll(ctx, c, base, tt.manifest)
			if !errors.Is(err, ErrFetchFailed) {
				t.Fatalf("AddAll() error = %v, want ErrFetchFailed", err)
			}

			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("AddAll() error %T is not *FetchError", err)
			}

			if n, _ := c.Len(ctx); n != 0 {
				t.Errorf("Len() after failed AddAll = %d, want 0", n)
			}
		})
	}
}

func TestBatchFetcher_TransportError(t *testing.T) {
	transport := &testutil.CountingTransport{}
	fetcher := NewBatchFetcher(&http.Client{Transport: transport}, DefaultConfig(), zerolog.Nop())

	base, _ := url.Parse("https://app.example.com/")
	_, err := fetcher.FetchAll(context.Background(), base, []string{"./index.html"})
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("FetchAll() error = %v, want ErrFetchFailed", err)
	}
	if !errors.Is(err, testutil.ErrNetworkDown) {
		t.Errorf("FetchAll() error = %v, want wrapped ErrNetworkDown", err)
	}
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(nil, Config{}, zerolog.Nop())
	if bf.client != http.DefaultClient {
		t.Error("nil client should default to http.DefaultClient")
	}
	if bf.config.MaxConcurrency != 6 {
		t.Errorf("MaxConcurrency = %d, want 6", bf.config.MaxConcurrency)
	}
	if bf.config.Timeout <= 0 {
		t.Error("Timeout should default to a positive value")
	}
}
