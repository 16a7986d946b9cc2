package service

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// Metrics holds the Prometheus collectors for persistence and jobs.
type Metrics struct {
	// Persistence
	DocumentsSaved   *prometheus.CounterVec // docflow_documents_saved_total{category}
	DocumentsDeleted prometheus.Counter     // docflow_documents_deleted_total
	DocumentsTrashed prometheus.Counter     // docflow_documents_trashed_total
	SaveFailures     *prometheus.CounterVec // docflow_save_failures_total{stage}
	Compensations    *prometheus.CounterVec // docflow_compensations_total{result}
	OrphansRecorded  prometheus.Counter     // docflow_orphans_recorded_total
	OrphansResolved  prometheus.Counter     // docflow_orphans_resolved_total
	BytesStored      prometheus.Counter     // docflow_bytes_stored_total

	// Jobs
	JobsSubmitted   *prometheus.CounterVec   // docflow_jobs_submitted_total{type}
	JobsFinished    *prometheus.CounterVec   // docflow_jobs_finished_total{type,status}
	JobsRequeued    *prometheus.CounterVec   // docflow_jobs_requeued_total{type}
	JobsSkipped     *prometheus.CounterVec   // docflow_jobs_skipped_total{type}
	JobDuration     *prometheus.HistogramVec // docflow_job_duration_seconds{type}
	CrackAttempts   prometheus.Counter       // docflow_crack_attempts_total
	BackgroundTasks *prometheus.CounterVec   // docflow_background_tasks_total{task,result}
	InflightJobs    *prometheus.GaugeVec     // docflow_inflight_jobs{class}
}

// InitMetrics registers the collectors once; later calls return the same
// instance. A nil registry means the default registerer.
func InitMetrics(registry prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		f := promauto.With(registry)
		metricsInstance = &Metrics{
			DocumentsSaved: f.NewCounterVec(prometheus.CounterOpts{
				Name: "docflow_documents_saved_total",
				Help: "Documents persisted by category",
			}, []string{"category"}),

			DocumentsDeleted: f.NewCounter(prometheus.CounterOpts{
				Name: "docflow_documents_deleted_total",
				Help: "Documents removed from the catalog",
			}),

			DocumentsTrashed: f.NewCounter(prometheus.CounterOpts{
				Name: "docflow_documents_trashed_total",
				Help: "Documents moved to the trash",
			}),

			SaveFailures: f.NewCounterVec(prometheus.CounterOpts{
				Name: "docflow_save_failures_total",
				Help: "Failed saves by the stage that failed",
			}, []string{"stage"}),

			Compensations: f.NewCounterVec(prometheus.CounterOpts{
				Name: "docflow_compensations_total",
				Help: "Compensating blob deletes by result",
			}, []string{"result"}),

			OrphansRecorded: f.NewCounter(prometheus.CounterOpts{
				Name: "docflow_orphans_recorded_total",
				Help: "Blobs recorded in the orphan ledger",
			}),

			OrphansResolved: f.NewCounter(prometheus.CounterOpts{
				Name: "docflow_orphans_resolved_total",
				Help: "Orphaned blobs removed by reconciliation",
			}),

			BytesStored: f.NewCounter(prometheus.CounterOpts{
				Name: "docflow_bytes_stored_total",
				Help: "Bytes written to the object store",
			}),

			JobsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
				Name: "docflow_jobs_submitted_total",
				Help: "Jobs accepted by type",
			}, []string{"type"}),

			JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
				Name: "docflow_jobs_finished_total",
				Help: "Jobs reaching a terminal state by type and status",
			}, []string{"type", "status"}),

			JobsRequeued: f.NewCounterVec(prometheus.CounterOpts{
				Name: "docflow_jobs_requeued_total",
				Help: "Job deliveries handed back to the queue",
			}, []string{"type"}),

			JobsSkipped: f.NewCounterVec(prometheus.CounterOpts{
				Name: "docflow_jobs_skipped_total",
				Help: "Redeliveries of jobs already terminal",
			}, []string{"type"}),

			JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "docflow_job_duration_seconds",
				Help:    "Job execution time in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			}, []string{"type"}),

			CrackAttempts: f.NewCounter(prometheus.CounterOpts{
				Name: "docflow_crack_attempts_total",
				Help: "Password candidates tried",
			}),

			BackgroundTasks: f.NewCounterVec(prometheus.CounterOpts{
				Name: "docflow_background_tasks_total",
				Help: "Supervised background tasks by name and result",
			}, []string{"task", "result"}),

			InflightJobs: f.NewGaugeVec(prometheus.GaugeOpts{
				Name: "docflow_inflight_jobs",
				Help: "Jobs currently executing by scheduling class",
			}, []string{"class"}),
		}
	})
	return metricsInstance
}
