package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_syncs_total",
			Help: "Total number of user syncs by outcome",
		},
		[]string{"result"},
	)

	depositsFoundTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_deposits_found_total",
			Help: "Total number of new deposits recorded",
		},
	)

	syncErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_sync_errors_total",
			Help: "Total number of failed syncs by error kind",
		},
		[]string{"kind"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_sync_duration_seconds",
			Help:    "Time taken to sync a single user",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	schedulerCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_scheduler_cycles_total",
			Help: "Total number of completed scheduler cycles",
		},
	)

	schedulerCycleUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_scheduler_cycle_users",
			Help: "Number of pollable users in the last scheduler cycle",
		},
	)

	notificationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_notification_failures_total",
			Help: "Total number of deposit notifications that could not be delivered",
		},
	)
)
