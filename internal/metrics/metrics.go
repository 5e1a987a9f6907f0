package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Listener metrics
var (
	// ListenersConnected tracks listeners currently held by the registry.
	ListenersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radio_listeners_connected",
			Help: "Number of listeners currently registered",
		},
	)

	// ListenersPruned counts listeners removed during fan-out because their sink was closed.
	ListenersPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_listeners_pruned_total",
			Help: "Listeners removed while broadcasting because their sink was closed",
		},
	)

	// ListenerDroppedChunks counts chunks skipped for a listener whose backlog was full.
	ListenerDroppedChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_listener_dropped_chunks_total",
			Help: "Chunks dropped for slow listeners with a full backlog",
		},
	)

	// BroadcastBytes counts bytes paced out to the broadcast sink.
	BroadcastBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_broadcast_bytes_total",
			Help: "Bytes handed to the broadcast sink",
		},
	)
)

// Engine metrics
var (
	// ProbeFailures counts bitrate probes that fell back to the default rate.
	ProbeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_probe_failures_total",
			Help: "Bitrate probes that failed and used the fallback rate",
		},
	)

	// MixerLegFailures counts failed legs of the effect mixer by leg (input/output/spawn).
	MixerLegFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_mixer_leg_failures_total",
			Help: "Effect mixer pipeline failures by leg",
		},
		[]string{"leg"},
	)

	// EffectsAppended counts effects overlaid onto a live session.
	EffectsAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_effects_appended_total",
			Help: "Effects merged into the live stream",
		},
	)

	// SessionsStarted counts playback sessions started.
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_sessions_started_total",
			Help: "Playback sessions started",
		},
	)
)
