package myelectric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myelectric_refresh_triggers_total",
			Help: "Total number of refresh requests by what requested them.",
		},
		[]string{"reason"},
	)
	refreshDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "myelectric_refresh_dropped_total",
			Help: "Total number of refresh requests dropped because a refresh was in flight.",
		},
	)
	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myelectric_refreshes_total",
			Help: "Total number of completed refreshes by result.",
		},
		[]string{"result"},
	)
	refreshDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "myelectric_refresh_duration_seconds",
			Help:    "Refresh latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	startOfDayLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "myelectric_start_of_day_lookups_total",
			Help: "Start of day baseline lookups by whether the cache was used.",
		},
		[]string{"cache"},
	)
)

func observeRefresh(err error, seconds float64) {
	result := "ok"
	if err != nil {
		result = Classify(err).String()
	}
	refreshesTotal.WithLabelValues(result).Inc()
	refreshDurationSeconds.Observe(seconds)
}
