// Package metrics exposes Prometheus counters for the retry pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewd_retries_scheduled_total",
		Help: "Number of payment retries scheduled",
	})

	RetriesSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewd_retries_succeeded_total",
		Help: "Number of retries whose payment attempt succeeded",
	})

	RetriesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewd_retries_failed_total",
		Help: "Number of retries whose payment attempt failed again",
	})

	RetriesCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewd_retries_cancelled_total",
		Help: "Number of retries cancelled because the order left the retry-eligible state",
	})

	RetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewd_retries_exhausted_total",
		Help: "Number of orders whose failures outran the rule table",
	})
)
