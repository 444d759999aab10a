// Package interceptor answers intercepted requests from the active cache
// generation, synthesizes heartbeat replies, and passes everything else
// through to the network.
package interceptor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/asset-agent/pkg/cache"
)

// Prometheus metrics for intercepted requests.
var (
	interceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_intercepted_requests_total",
		Help: "Total intercepted requests by decision",
	}, []string{"decision"}) // "heartbeat", "passthrough", "cache_hit", "network"
)

const (
	// DefaultHeartbeatMarker is the reserved URL substring for heartbeats.
	DefaultHeartbeatMarker = "/__agent_heartbeat"

	// HeartbeatBody is the synthetic heartbeat payload.
	HeartbeatBody = "pong"
)

// GenerationSource returns the active cache generation, or nil when no
// generation has activated yet.
type GenerationSource func() cache.Cache

// Interceptor is an http.RoundTripper wrapping the network transport.
type Interceptor struct {
	next       http.RoundTripper
	generation GenerationSource
	marker     string
	logger     zerolog.Logger
}

// New creates an interceptor. A nil next uses http.DefaultTransport; an
// empty marker uses DefaultHeartbeatMarker.
func New(next http.RoundTripper, generation GenerationSource, marker string, logger zerolog.Logger) *Interceptor {
	if next == nil {
		next = http.DefaultTransport
	}
	if marker == "" {
		marker = DefaultHeartbeatMarker
	}
	return &Interceptor{
		next:       next,
		generation: generation,
		marker:     marker,
		logger:     logger,
	}
}

// RoundTrip applies, in order:
//  1. heartbeat marker in the URL: synthetic 200 "pong", no cache or network
//  2. non-GET: untouched pass-through
//  3. GET: stored response from the active generation, else one network
//     round trip whose result is returned as-is and never stored
func (i *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.Contains(req.URL.String(), i.marker) {
		interceptedTotal.WithLabelValues("heartbeat").Inc()
		closeRequestBody(req)
		return heartbeatResponse(req), nil
	}

	key := cache.NewKey(req)
	if !key.Cacheable() {
		interceptedTotal.WithLabelValues("passthrough").Inc()
		return i.next.RoundTrip(req)
	}

	var generation cache.Cache
	if i.generation != nil {
		generation = i.generation()
	}
	if generation == nil {
		interceptedTotal.WithLabelValues("passthrough").Inc()
		return i.next.RoundTrip(req)
	}

	entry, err := generation.Match(req.Context(), key)
	switch {
	case err == nil:
		closeRequestBody(req)
		interceptedTotal.WithLabelValues("cache_hit").Inc()
		i.logger.Debug().Str("key", key.String()).Str("generation", generation.Name()).Msg("Cache hit")
		return cache.EntryToResponse(entry, req), nil
	case errors.Is(err, cache.ErrCacheMiss):
		// fall through to the network
	default:
		closeRequestBody(req)
		i.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache lookup failed")
		return nil, fmt.Errorf("cache match %s: %w", key, err)
	}

	interceptedTotal.WithLabelValues("network").Inc()
	i.logger.Debug().Str("key", key.String()).Msg("Cache miss, fetching from network")

	resp, err := i.next.RoundTrip(req)
	networkResultsTotal.WithLabelValues(string(classifyResult(resp, err))).Inc()
	return resp, err
}

// closeRequestBody releases the body of a request answered without the
// network, as http.RoundTripper requires.
func closeRequestBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

func heartbeatResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header: http.Header{
			"Content-Type":   []string{"text/plain; charset=utf-8"},
			"Cache-Control":  []string{"no-store"},
			"Content-Length": []string{"4"},
		},
		Body:          io.NopCloser(bytes.NewReader([]byte(HeartbeatBody))),
		ContentLength: int64(len(HeartbeatBody)),
		Request:       req,
	}
}
