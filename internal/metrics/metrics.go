// Package metrics exposes Prometheus counters for the HTTP layer, the
// storage transaction engine, and outbound mail.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meditrack_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "status"})

	TxnConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meditrack_txn_conflicts_total",
		Help: "Optimistic transaction commits discarded due to a concurrent write",
	})

	TxnRetriesExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meditrack_txn_retries_exhausted_total",
		Help: "Guarded operations that gave up after the retry bound",
	})

	ScanPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meditrack_scan_pages_total",
		Help: "Key-scan pages read from the store",
	})

	MailSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meditrack_mail_sent_total",
		Help: "Outbound emails by kind and outcome",
	}, []string{"kind", "outcome"})

	LoginThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meditrack_login_throttled_total",
		Help: "Login attempts rejected by the per-client rate limiter",
	})
)

// Handler returns the Prometheus exposition handler; main serves it on
// its own listener so the API port stays app-only.
func Handler() http.Handler {
	return promhttp.Handler()
}
