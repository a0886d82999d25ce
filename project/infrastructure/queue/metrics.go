package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// jobsEnqueued はジョブ種別ごとの投入数
	jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writequeue_jobs_enqueued_total",
			Help: "Total number of jobs accepted by the write queue.",
		},
		[]string{"job"},
	)

	// jobsDropped はキュー満杯で捨てたジョブ数
	jobsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writequeue_jobs_dropped_total",
			Help: "Total number of jobs dropped because the write queue was full.",
		},
		[]string{"job"},
	)

	// jobsProcessed は結果（ok / abandoned / exhausted）ごとの処理数
	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writequeue_jobs_processed_total",
			Help: "Total number of jobs processed by the write worker, by result.",
		},
		[]string{"job", "result"},
	)

	// jobRetries はレート制限による再試行回数
	jobRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writequeue_job_retries_total",
			Help: "Total number of rate-limit retries performed by the write worker.",
		},
		[]string{"job"},
	)

	// queueDepth は現在のキュー長
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "writequeue_depth",
			Help: "Current number of jobs waiting in the write queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsEnqueued, jobsDropped, jobsProcessed, jobRetries, queueDepth)
}
