// Package metrics exposes the Prometheus registry the agent's packages
// register into. Each package defines its own collectors via promauto so
// that no package depends on this one; this package only serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer promauto uses in every agent package.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer behind Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics
//
// Lifecycle (pkg/lifecycle):
//   - agent_lifecycle_transitions_total{state} (Counter): transitions entered, by target state
//   - agent_generations_deleted_total (Counter): stale generations deleted on activation
//
// Cache (pkg/cache):
//   - agent_cache_hits_total{backend} (Counter): Match hits
//   - agent_cache_misses_total{backend} (Counter): Match misses
//   - agent_cache_entries_written_total{backend} (Counter): entries stored by PutAll
//   - agent_cache_errors_total{backend, operation} (Counter): backend failures
//
// Prefetch (pkg/prefetch):
//   - agent_prefetch_duration_seconds (Histogram): whole-manifest fetch duration
//   - agent_prefetch_failures_total (Counter): manifest entries that failed
//
// Interception (pkg/interceptor):
//   - agent_intercepted_requests_total{decision} (Counter): heartbeat, passthrough, cache_hit, network
//   - agent_network_results_total{class} (Counter): fallback results by class
//
// Liveness (pkg/liveness):
//   - agent_keepalive_ticks_total (Counter): keepalive timer ticks
//   - agent_messages_total{accepted} (Counter): page messages by acceptance
//   - agent_last_activity_timestamp_seconds (Gauge): last idle reset
//
// Pages and notifications (pkg/clients, pkg/notify):
//   - agent_clients_connected (Gauge): connected pages
//   - agent_windows_opened_total (Counter): windows opened on request
//   - agent_notification_clicks_total{outcome} (Counter): focused or opened
//
// Agent (pkg/agent):
//   - agent_events_total{event} (Counter): host events handled
//
// Example queries:
//
//   # Offline hit rate
//   sum(rate(agent_cache_hits_total[5m])) /
//   (sum(rate(agent_cache_hits_total[5m])) + sum(rate(agent_cache_misses_total[5m])))
//
//   # Failed installs
//   increase(agent_lifecycle_transitions_total{state="redundant"}[1h])
//
//   # Pages kept alive
//   agent_clients_connected
