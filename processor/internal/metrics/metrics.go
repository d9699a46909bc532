package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Consumption metrics
	BatchSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thingflow_processor_batch_size",
			Help: "Size of the most recent decoded-events batch",
		},
		[]string{"tenant"},
	)

	SkippedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_processor_skipped_messages_total",
			Help: "Total number of broker messages skipped as corrupt",
		},
		[]string{"tenant"},
	)

	// Dispatch metrics
	ProcessedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_processor_processed_events_total",
			Help: "Total number of events successfully stored",
		},
		[]string{"tenant", "event_type"},
	)

	DispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_processor_dispatch_failures_total",
			Help: "Total number of events that failed storage dispatch",
		},
		[]string{"tenant", "event_type"},
	)

	UnregisteredDevices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_processor_unregistered_devices_total",
			Help: "Total number of events rerouted because the device had no active assignment",
		},
		[]string{"tenant"},
	)

	DeviceLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thingflow_processor_device_lookup_duration_seconds",
			Help:    "Duration of device registry lookups during dispatch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	AssignmentLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thingflow_processor_assignment_lookup_duration_seconds",
			Help:    "Duration of assignment lookups during dispatch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	// Outbound metrics
	OutboundDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_processor_outbound_delivered_total",
			Help: "Total number of enriched events delivered to outbound topics",
		},
		[]string{"tenant", "topic_role"},
	)

	OutboundFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_processor_outbound_failures_total",
			Help: "Total number of outbound produce failures",
		},
		[]string{"tenant", "topic_role"},
	)
)
