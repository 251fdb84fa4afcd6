package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_pages_fetched_total",
		Help: "Total number of ISS history pages requested",
	}, []string{"category", "status"})

	PageFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iss_page_fetch_duration_seconds",
		Help:    "Duration of a single ISS page request",
		Buckets: prometheus.DefBuckets,
	}, []string{"category"})

	HistoryRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "history_requests_total",
		Help: "Total number of history queries by outcome",
	}, []string{"category", "result"})

	HistoryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "history_request_duration_seconds",
		Help:    "Duration of a full paginated history query",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"category"})

	RowsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "history_rows_normalized_total",
		Help: "Total number of rows projected into normalized tables",
	}, []string{"category"})

	SessionOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_operations_total",
		Help: "Total number of session store operations",
	}, []string{"operation", "status"})

	ExportedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "export_rows_total",
		Help: "Total number of rows written to export sinks",
	}, []string{"sink", "status"})

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "database_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query_type"})
)

func RecordPageFetched(category, status string) {
	PagesFetched.WithLabelValues(category, status).Inc()
}

func RecordHistoryRequest(category, result string) {
	HistoryRequests.WithLabelValues(category, result).Inc()
}

func RecordRowsNormalized(category string, rows int) {
	RowsNormalized.WithLabelValues(category).Add(float64(rows))
}

func RecordSessionOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SessionOperations.WithLabelValues(operation, status).Inc()
}

func RecordExport(sink string, rows int64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ExportedRows.WithLabelValues(sink, status).Add(float64(rows))
}

type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{
		start: time.Now(),
	}
}

func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
