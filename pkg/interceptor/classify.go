package interceptor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var networkResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agent_network_results_total",
	Help: "Total network fallback results by class",
}, []string{"class"})

// ResultClass classifies a network fallback result for observability.
// It never changes what is returned to the requester.
type ResultClass string

const (
	// ResultClassSuccess represents 1xx-3xx responses.
	ResultClassSuccess ResultClass = "success"

	// ResultClassClient represents 4xx client errors.
	ResultClassClient ResultClass = "client"

	// ResultClassServer represents 5xx server errors.
	ResultClassServer ResultClass = "server"

	// ResultClassNetwork represents transport failures.
	ResultClassNetwork ResultClass = "network"
)

func classifyResult(resp *http.Response, err error) ResultClass {
	switch {
	case err != nil || resp == nil:
		return ResultClassNetwork
	case resp.StatusCode >= 500:
		return ResultClassServer
	case resp.StatusCode >= 400:
		return ResultClassClient
	default:
		return ResultClassSuccess
	}
}
