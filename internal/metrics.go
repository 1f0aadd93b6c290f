package internal

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	upstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redveil_upstream_requests_total",
		Help: "Upstream API requests by final status code",
	}, []string{"status"})
	upstreamRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redveil_upstream_retries_total",
		Help: "Transient upstream failures that were retried",
	})
	upstreamDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "redveil_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds",
		Buckets: prometheus.DefBuckets,
	})
	tokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redveil_token_refreshes_total",
		Help: "Bearer credential refresh attempts by outcome",
	}, []string{"outcome"})
	mediaBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redveil_media_proxied_bytes_total",
		Help: "Media bytes streamed through the proxy",
	})
)

func init() {
	prometheus.MustRegister(upstreamRequests, upstreamRetries, upstreamDuration, tokenRefreshes, mediaBytes)
}

func observeUpstream(status int, start time.Time) {
	upstreamRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	upstreamDuration.Observe(time.Since(start).Seconds())
}

// CountMediaBytes records bytes streamed to a media proxy caller.
func CountMediaBytes(n int64) {
	if n > 0 {
		mediaBytes.Add(float64(n))
	}
}

// CountTokenRefresh records a credential refresh outcome ("ok" or "error").
func CountTokenRefresh(outcome string) {
	tokenRefreshes.WithLabelValues(outcome).Inc()
}
