// Package metrics holds the process-wide Prometheus collectors for ledger
// access, settlement, the read model and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propchain_ledger_calls_total",
		Help: "Total read calls made to the contract by method and result.",
	}, []string{"method", "result"})

	ledgerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "propchain_ledger_call_duration_seconds",
		Help:    "Contract read call duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propchain_submissions_total",
		Help: "Total state-changing calls submitted by method and result.",
	}, []string{"method", "result"})

	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propchain_settlements_total",
		Help: "Total transactions settled by method and final status.",
	}, []string{"method", "status"})

	settlementWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "propchain_settlement_wait_seconds",
		Help:    "Time between submission and settlement in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"method"})

	snapshotListings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propchain_snapshot_listings",
		Help: "Number of listings in the current read-model snapshot.",
	})

	snapshotRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propchain_snapshot_refreshes_total",
		Help: "Total read-model refreshes by result.",
	}, []string{"result"})

	journalEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propchain_journal_entries_total",
		Help: "Total settlement journal entries appended.",
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propchain_notifications_total",
		Help: "Total settlement notifications published by status.",
	}, []string{"status"})

	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propchain_webhook_deliveries_total",
		Help: "Total webhook delivery attempts by status.",
	}, []string{"status"})

	ledgerProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propchain_ledger_probes_total",
		Help: "Total periodic ledger health probes by result.",
	}, []string{"result"})

	ledgerHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propchain_ledger_healthy",
		Help: "1 while the ledger is reachable, 0 once it is degraded.",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propchain_http_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "propchain_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordLedgerCall records one read call and its duration.
func RecordLedgerCall(method string, seconds float64, err error) {
	ledgerCallsTotal.WithLabelValues(method, result(err)).Inc()
	ledgerCallDuration.WithLabelValues(method).Observe(seconds)
}

// RecordSubmission records one submission attempt.
func RecordSubmission(method string, err error) {
	submissionsTotal.WithLabelValues(method, result(err)).Inc()
}

// RecordSettlement records a settled transaction and how long it took.
func RecordSettlement(method, status string, seconds float64) {
	settlementsTotal.WithLabelValues(method, status).Inc()
	settlementWait.WithLabelValues(method).Observe(seconds)
}

// RecordRefresh records a read-model refresh; listings is ignored on error.
func RecordRefresh(listings int, err error) {
	snapshotRefreshesTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		snapshotListings.Set(float64(listings))
	}
}

// RecordJournalAppend records a settlement journal entry append.
func RecordJournalAppend() {
	journalEntriesTotal.Inc()
}

// RecordNotification records a settlement notification attempt.
func RecordNotification(success bool) {
	if success {
		notificationsTotal.WithLabelValues("success").Inc()
	} else {
		notificationsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordWebhookDelivery records one webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		webhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		webhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordRequest records one served HTTP request.
func RecordRequest(method, path, status string, seconds float64) {
	requestsTotal.WithLabelValues(method, path, status).Inc()
	requestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordLedgerProbe records one health probe of the ledger.
func RecordLedgerProbe(success bool) {
	if success {
		ledgerProbesTotal.WithLabelValues("ok").Inc()
	} else {
		ledgerProbesTotal.WithLabelValues("error").Inc()
	}
}

// SetLedgerHealthy sets the ledger health gauge.
func SetLedgerHealthy(healthy bool) {
	if healthy {
		ledgerHealthy.Set(1)
	} else {
		ledgerHealthy.Set(0)
	}
}
