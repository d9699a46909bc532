package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decode metrics
	EventsDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_sources_events_decoded_total",
			Help: "Total number of device requests decoded from raw payloads",
		},
		[]string{"tenant", "source"},
	)

	DecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_sources_decode_failures_total",
			Help: "Total number of payloads that failed decoding",
		},
		[]string{"tenant", "source", "reason"},
	)

	DeviceLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thingflow_sources_device_lookup_duration_seconds",
			Help:    "Duration of device registry lookups during decoding",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant"},
	)

	// Deduplication metrics
	DuplicatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_sources_duplicates_dropped_total",
			Help: "Total number of decoded requests dropped as duplicates",
		},
		[]string{"tenant", "source"},
	)

	DedupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_sources_dedup_failures_total",
			Help: "Total number of duplicate-detection lookup failures",
		},
		[]string{"tenant", "source"},
	)

	// Produce metrics
	EventsForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_sources_events_forwarded_total",
			Help: "Total number of decoded requests forwarded to the broker",
		},
		[]string{"tenant", "source", "topic_role"},
	)

	ProduceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thingflow_sources_produce_failures_total",
			Help: "Total number of broker produce failures after retry exhaustion",
		},
		[]string{"tenant", "topic_role"},
	)
)
