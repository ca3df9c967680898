// Package metrics turns the teacher's internal/metrics/doc.go stub
// (a comment enumerating intended connection/writer/buffer/database
// metrics that was never implemented in the pack) into a real
// Prometheus registry. The Pool, Subscription Manager and Dispatcher
// each hold an optional *Registry and call into it from the same
// places they already log (the Dispatcher also records the order book
// gap/stale/protocol counters; the Book Engine holds none), the way
// internal/connection/manager.go logs state transitions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns every metric this client exposes and the handler that
// serves them. A nil *Registry is valid everywhere it's accepted as a
// collaborator: every method on it is a no-op, so components can hold
// one unconditionally and skip a nil check at each call site.
type Registry struct {
	reg *prometheus.Registry

	poolConnections *prometheus.GaugeVec
	poolElections   prometheus.Counter
	poolReconnects  *prometheus.CounterVec
	poolRTT         prometheus.Histogram

	subsActive          prometheus.Gauge
	subsPending         prometheus.Gauge
	subsErrors          *prometheus.CounterVec
	subsConfirmTimeouts prometheus.Counter

	dispatchMessages *prometheus.CounterVec
	dispatchParseErr prometheus.Counter
	dispatchUnknown  prometheus.Counter

	bookSequenceGaps prometheus.Counter
	bookStaleDeltas  prometheus.Counter
	bookProtocolErrs prometheus.Counter
}

// New creates a Registry backed by a fresh prometheus.Registry (not
// the global default), so multiple client instances in one process
// never collide on metric registration.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		poolConnections: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "kalshi_stream_pool_connections",
			Help: "Current pool connections by role (active, standby).",
		}, []string{"role"}),
		poolElections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_pool_elections_total",
			Help: "Number of times the pool elected a new active connection.",
		}),
		poolReconnects: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kalshi_stream_pool_reconnects_total",
			Help: "Number of connection reconnects, by reason.",
		}, []string{"reason"}),
		poolRTT: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "kalshi_stream_pool_rtt_seconds",
			Help:    "Ping round-trip time samples across all pool connections.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		subsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kalshi_stream_subscriptions_active",
			Help: "Number of subscriptions currently in the Active state.",
		}),
		subsPending: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kalshi_stream_subscriptions_pending",
			Help: "Number of subscriptions awaiting ack or unsubscribe confirmation.",
		}),
		subsErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kalshi_stream_subscription_errors_total",
			Help: "Server-reported subscription errors, by reported reason.",
		}, []string{"reason"}),
		subsConfirmTimeouts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_subscription_confirmation_timeouts_total",
			Help: "Subscribe/unsubscribe commands that never got a server ack in time.",
		}),
		dispatchMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kalshi_stream_dispatch_messages_total",
			Help: "Inbound frames routed, by message type.",
		}, []string{"type"}),
		dispatchParseErr: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_dispatch_parse_errors_total",
			Help: "Inbound frames that failed envelope or payload decoding.",
		}),
		dispatchUnknown: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_dispatch_unknown_messages_total",
			Help: "Inbound frames of an unrecognised message type.",
		}),
		bookSequenceGaps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_book_sequence_gaps_total",
			Help: "Order book deltas that arrived with seq > last_seq+1.",
		}),
		bookStaleDeltas: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_book_stale_deltas_total",
			Help: "Order book deltas dropped because seq <= last_seq.",
		}),
		bookProtocolErrs: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kalshi_stream_book_protocol_errors_total",
			Help: "Malformed order book frames (missing seq, unknown side, crossed book).",
		}),
	}
	return r
}

// Handler serves the registry's metrics for scraping.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SetPoolConnections records the number of connections currently in a
// given role ("active" or "standby").
func (r *Registry) SetPoolConnections(role string, n int) {
	if r == nil {
		return
	}
	r.poolConnections.WithLabelValues(role).Set(float64(n))
}

// IncPoolElection counts a pool election that changed the active
// connection; callers only invoke this when elect() actually swapped
// the active id, so no-op elections are not counted.
func (r *Registry) IncPoolElection() {
	if r == nil {
		return
	}
	r.poolElections.Inc()
}

// IncPoolReconnect counts a connection reconnect attempt, tagged with
// why it happened ("ping_failure", "read_error", "forced").
func (r *Registry) IncPoolReconnect(reason string) {
	if r == nil {
		return
	}
	r.poolReconnects.WithLabelValues(reason).Inc()
}

// ObservePoolRTT records one ping round-trip sample.
func (r *Registry) ObservePoolRTT(seconds float64) {
	if r == nil {
		return
	}
	r.poolRTT.Observe(seconds)
}

// SetActiveSubscriptions records the current Active subscription count.
func (r *Registry) SetActiveSubscriptions(n int) {
	if r == nil {
		return
	}
	r.subsActive.Set(float64(n))
}

// SetPendingSubscriptions records subscriptions awaiting confirmation.
func (r *Registry) SetPendingSubscriptions(n int) {
	if r == nil {
		return
	}
	r.subsPending.Set(float64(n))
}

// IncSubscriptionError counts a server-reported subscription error.
func (r *Registry) IncSubscriptionError(reason string) {
	if r == nil {
		return
	}
	r.subsErrors.WithLabelValues(reason).Inc()
}

// IncConfirmationTimeout counts a subscribe/unsubscribe that never got
// acked before its timer fired.
func (r *Registry) IncConfirmationTimeout() {
	if r == nil {
		return
	}
	r.subsConfirmTimeouts.Inc()
}

// IncDispatched counts one routed frame of the given message type.
func (r *Registry) IncDispatched(msgType string) {
	if r == nil {
		return
	}
	r.dispatchMessages.WithLabelValues(msgType).Inc()
}

// IncDispatchParseError counts one envelope or payload that failed to
// decode.
func (r *Registry) IncDispatchParseError() {
	if r == nil {
		return
	}
	r.dispatchParseErr.Inc()
}

// IncDispatchUnknown counts one frame of an unrecognised type.
func (r *Registry) IncDispatchUnknown() {
	if r == nil {
		return
	}
	r.dispatchUnknown.Inc()
}

// IncBookSequenceGap counts one dropped-and-resnapshotted gap.
func (r *Registry) IncBookSequenceGap() {
	if r == nil {
		return
	}
	r.bookSequenceGaps.Inc()
}

// IncBookStaleDelta counts one delta dropped as stale.
func (r *Registry) IncBookStaleDelta() {
	if r == nil {
		return
	}
	r.bookStaleDeltas.Inc()
}

// IncBookProtocolError counts one malformed book frame.
func (r *Registry) IncBookProtocolError() {
	if r == nil {
		return
	}
	r.bookProtocolErrs.Inc()
}
