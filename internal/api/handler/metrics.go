package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/chainledger/internal/model"
)

var (
	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chainledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerPostsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainledger_posts_total",
		Help: "Total post attempts by result.",
	}, []string{"result"})

	ledgerVoidsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainledger_voids_total",
		Help: "Total entries voided by reversal.",
	})

	ledgerChainRacesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chainledger_chain_races_total",
		Help: "Total appends rejected because the chain tail moved.",
	})

	ledgerVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainledger_verifications_total",
		Help: "Total chain verifications by result.",
	}, []string{"result"})

	ledgerIntegrityOK = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainledger_integrity_ok",
		Help: "1 when the last audit verified the whole chain, 0 otherwise.",
	})

	ledgerRateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainledger_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter, by class.",
	}, []string{"class"})

	ledgerChainLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainledger_chain_length",
		Help: "Number of posted entries verified by the last audit.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		ledgerRequestsTotal.WithLabelValues(method, path, status).Inc()
		ledgerRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordPost records a post attempt.
func RecordPost(result string) {
	ledgerPostsTotal.WithLabelValues(result).Inc()
}

// RecordVoid records a void.
func RecordVoid() {
	ledgerVoidsTotal.Inc()
}

// RecordChainRace records an append that lost the race for the tail.
func RecordChainRace() {
	ledgerChainRacesTotal.Inc()
}

// RecordVerification records a chain verification result.
func RecordVerification(res model.VerificationResult) {
	if res.IsValid {
		ledgerVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		ledgerVerificationsTotal.WithLabelValues("broken").Inc()
	}
}

func recordRateLimited(class RateClass) {
	ledgerRateLimitedTotal.WithLabelValues(string(class)).Inc()
}

// RecordAudit sets the integrity gauges from a periodic audit.
func RecordAudit(ok bool, entries int64) {
	if ok {
		ledgerIntegrityOK.Set(1)
	} else {
		ledgerIntegrityOK.Set(0)
	}
	ledgerChainLength.Set(float64(entries))
}
