package usps

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const promNamespace = "usps_client"

// Collector exposes Prometheus counters for USPS client activity.
// It implements prometheus.Collector, so it can be registered on any
// registry and attached to a client with WithCollector.
//
//	col := usps.NewCollector()
//	prometheus.MustRegister(col)
//
//	client := usps.New(usps.WithCollector(col))
//
// All methods are nil-safe; a client without a collector records
// nothing.
type Collector struct {
	requests       *prometheus.CounterVec
	retries        prometheus.Counter
	tokenRefreshes *prometheus.CounterVec
}

// NewCollector creates an unregistered Collector.
func NewCollector() *Collector {
	return &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "requests_total",
			Help:      "Total number of USPS API requests by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "retries_total",
			Help:      "Total number of USPS API retry attempts.",
		}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "token_refreshes_total",
			Help:      "Total number of OAuth token refresh requests by outcome.",
		}, []string{"outcome"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.retries.Describe(ch)
	c.tokenRefreshes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.retries.Collect(ch)
	c.tokenRefreshes.Collect(ch)
}

func (c *Collector) requestObserved(endpoint string, statusCode int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) retryObserved() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

func (c *Collector) tokenRefreshObserved(outcome string) {
	if c == nil {
		return
	}
	c.tokenRefreshes.WithLabelValues(outcome).Inc()
}
