package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	// DBQueriesTotal tracks the total number of database queries
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	// DBQueryDuration tracks the duration of database queries
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of established connections both in use and idle",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle connections",
		},
	)
)

// Analysis metrics
var (
	// StationsProcessed counts stations by data kind and outcome
	StationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamevents_stations_processed_total",
			Help: "Stations analyzed, by data kind and outcome",
		},
		[]string{"kind", "status"},
	)

	// EstimatorDuration tracks time spent in each rolling estimator
	EstimatorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamevents_estimator_duration_seconds",
			Help:    "Duration of rolling estimators in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"estimator"},
	)

	// ExceedancesTotal counts fired flags after cold-start suppression
	ExceedancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamevents_exceedances_total",
			Help: "Exceedance flags fired, by flag column and data kind",
		},
		[]string{"flag", "kind"},
	)

	// GapsTotal counts detected gap intervals
	GapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamevents_gaps_total",
			Help: "Gap intervals detected in observation records",
		},
		[]string{"kind"},
	)

	// AppStartTime records when the process started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamevents_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppStartTime.SetToCurrentTime()
}

// RecordDBQuery records a database query execution
func RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	DBQueriesTotal.WithLabelValues(queryType, table, status(err)).Inc()
	DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(open, inUse, idle int) {
	DBConnectionsOpen.Set(float64(open))
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
}

// RecordStation records the outcome of one station analysis
func RecordStation(kind string, err error) {
	StationsProcessed.WithLabelValues(kind, status(err)).Inc()
}

// ObserveEstimator records how long an estimator took
func ObserveEstimator(name string, started time.Time) {
	EstimatorDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
