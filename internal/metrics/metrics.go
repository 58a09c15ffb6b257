package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Transfer metrics
var (
	TransfersStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepoffline_transfers_started_total",
			Help: "Total number of transfers handed to the provider.",
		},
		[]string{"class"},
	)

	TransfersFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepoffline_transfers_finished_total",
			Help: "Total number of transfers promoted to their final file.",
		},
		[]string{"class"},
	)

	TransfersFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepoffline_transfers_failed_total",
			Help: "Total number of failed transfers by classified reason.",
		},
		[]string{"reason"},
	)

	TransfersInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keepoffline_transfers_in_flight",
			Help: "Transfers currently holding a provider handle.",
		},
		[]string{"class"},
	)

	TransfersCanceledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keepoffline_transfers_canceled_total",
			Help: "Total number of provider transfers canceled by the engine.",
		},
	)
)

// Scheduler metrics
var (
	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keepoffline_tick_duration_seconds",
			Help:    "Duration of engine loop ticks.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"loop"},
	)

	TicksSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepoffline_ticks_skipped_total",
			Help: "Ticks dropped because the previous tick of the same loop was still running.",
		},
		[]string{"loop"},
	)
)

// Planning and collection metrics
var (
	JobsPlannedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepoffline_jobs_planned_total",
			Help: "Total number of planner runs by outcome.",
		},
		[]string{"status"},
	)

	FilesCollectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keepoffline_files_collected_total",
			Help: "Total number of untracked files removed from the download root.",
		},
	)

	NetworkOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "keepoffline_network_online",
			Help: "1 when the last connectivity probe succeeded.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TransfersStartedTotal,
		TransfersFinishedTotal,
		TransfersFailedTotal,
		TransfersInFlight,
		TransfersCanceledTotal,
		TickDuration,
		TicksSkippedTotal,
		JobsPlannedTotal,
		FilesCollectedTotal,
		NetworkOnline,
	)
}
