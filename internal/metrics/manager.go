package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultNamespace = "irontrack"
	DefaultSubsystem = "api"
)

type Manager struct {
	// counters
	CounterRequests       *prometheus.CounterVec
	CounterWorkoutsLogged *prometheus.CounterVec
	CounterParseFailures  prometheus.Counter
	CounterStoreFailures  prometheus.Counter

	// gauges
	GaugeRequests prometheus.Gauge

	// histograms
	HistRequestDuration *prometheus.HistogramVec
	HistParseDuration   prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager(DefaultNamespace, "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager(DefaultNamespace, "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "The total number of incoming requests",
	}, []string{"method", "route", "status"})
	counterWorkoutsLogged := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "workouts_logged_total",
		Help:      "The total number of stored workout logs, by whether a new workout was created",
	}, []string{"created"})
	counterParseFailures := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "parse_failures_total",
		Help:      "The total number of workout texts that could not be parsed",
	})
	counterStoreFailures := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "store_failures_total",
		Help:      "The total number of parsed workouts that could not be stored",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})

	histRequestDuration := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			Name:      "request_duration_seconds",
			Help:      "Total duration of requests in seconds",
		},
		[]string{"route"},
	)
	histParseDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			Name:      "parse_duration_seconds",
			Help:      "Duration of a single text-to-workout parse in seconds",
		},
	)

	return &Manager{
		CounterRequests:       counterRequests,
		CounterWorkoutsLogged: counterWorkoutsLogged,
		CounterParseFailures:  counterParseFailures,
		CounterStoreFailures:  counterStoreFailures,
		GaugeRequests:         gaugeRequests,
		HistRequestDuration:   histRequestDuration,
		HistParseDuration:     histParseDuration,
	}
}
