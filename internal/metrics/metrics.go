package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session lifecycle metrics
var (
	// SessionsCreatedTotal counts sessions created by scans
	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doorbell_sessions_created_total",
			Help: "Total doorbell sessions created by QR scans",
		},
	)

	// SessionTransitionsTotal counts status transitions by target status
	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doorbell_session_transitions_total",
			Help: "Total session status transitions by target status",
		},
		[]string{"to"},
	)

	// SessionsExpiredTotal counts sessions declined by the expiry sweeper
	SessionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doorbell_sessions_expired_total",
			Help: "Total pending sessions expired without a response",
		},
	)

	// ExpirySweepDuration tracks expiry sweep latency in seconds
	ExpirySweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doorbell_expiry_sweep_duration_seconds",
			Help:    "Duration of pending-session expiry sweeps",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
	)
)

// Notification dispatch metrics
var (
	// NotifyDeliveriesTotal counts channel deliveries by channel and status
	NotifyDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_deliveries_total",
			Help: "Notification channel deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)

	// NotifyChannelDuration tracks per-channel delivery latency in seconds
	NotifyChannelDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_channel_duration_seconds",
			Help:    "Per-channel notification delivery duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// NotifySkippedTotal counts channels skipped because no target was configured
	NotifySkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_skipped_total",
			Help: "Notification channels skipped due to missing configuration",
		},
		[]string{"channel"},
	)
)

// Relay hub metrics
var (
	// RelayActiveGroups tracks the number of live video session groups
	RelayActiveGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_groups",
			Help: "Number of active video session groups",
		},
	)

	// RelayConnectedClients tracks connected relay participants
	RelayConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_clients",
			Help: "Number of connected relay participants",
		},
	)

	// RelayFramesRelayedTotal counts frames forwarded to peers
	RelayFramesRelayedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_frames_relayed_total",
			Help: "Total video frames forwarded to peers",
		},
	)

	// RelayFramesDroppedTotal counts dropped frames by reason
	RelayFramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Total video frames dropped by reason",
		},
		[]string{"reason"},
	)

	// RelaySlowPeersEvicted counts peers evicted for full outbound queues
	RelaySlowPeersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_peers_evicted_total",
			Help: "Total peers evicted because their outbound queue overflowed",
		},
	)

	// RelayStopTimeoutsTotal counts hub shutdowns that exceeded the grace period
	RelayStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_stop_timeouts_total",
			Help: "Total relay hub shutdowns that hit the stop timeout",
		},
	)

	// RelayPanicsTotal counts recovered panics in the hub goroutine
	RelayPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_panics_total",
			Help: "Total recovered panics in the relay hub",
		},
	)
)

// Frame drop reasons for RelayFramesDroppedTotal.
const (
	DropReasonNoGroup  = "no_group"
	DropReasonSlowPeer = "slow_peer"
)
