// Package metrics holds the Prometheus collectors for the sheet backup.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BackupRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haccp_backup_runs_total",
			Help: "Backup runs by trigger and final status",
		},
		[]string{"trigger", "status"},
	)

	BackupDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haccp_backup_documents_total",
			Help: "Document type exports by document type and status",
		},
		[]string{"document_type", "status"},
	)

	BackupRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haccp_backup_records_total",
			Help: "Records written to sheets by document type",
		},
		[]string{"document_type"},
	)

	SheetWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "haccp_sheet_writes_total",
			Help: "Successful sheet writes by the fallback rung that succeeded",
		},
		[]string{"rung"},
	)

	SheetWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "haccp_sheet_write_exhausted_total",
			Help: "Sheet writes that failed on every fallback rung",
		},
	)

	TokenExchangeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "haccp_token_exchange_duration_seconds",
			Help:    "Duration of OAuth token exchanges",
			Buckets: prometheus.DefBuckets,
		},
	)

	BackupRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "haccp_backup_run_duration_seconds",
			Help:    "Duration of whole backup runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(BackupRunsTotal)
		prometheus.MustRegister(BackupDocumentsTotal)
		prometheus.MustRegister(BackupRecordsTotal)
		prometheus.MustRegister(SheetWritesTotal)
		prometheus.MustRegister(SheetWriteFailuresTotal)
		prometheus.MustRegister(TokenExchangeDuration)
		prometheus.MustRegister(BackupRunDuration)
	})
}
