package monitoring

import (
	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	rosterSize      prometheus.Gauge
	connectionState *prometheus.GaugeVec
	linkCount       *prometheus.GaugeVec

	eventsTotal          *prometheus.CounterVec
	reconnectsTotal      prometheus.Counter
	negotiationFailures  prometheus.Counter
	reconciliationsTotal *prometheus.CounterVec
}

var _ ports.Metrics = (*PrometheusCollector)(nil)

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		rosterSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "meetcore_roster_size",
			Help: "Number of remote participants in the roster",
		}),

		connectionState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meetcore_connection_state",
			Help: "Signaling channel state (1 for the current state, 0 otherwise)",
		}, []string{"state"}),

		linkCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meetcore_peer_links",
			Help: "Number of peer links per negotiation state",
		}, []string{"state"}),

		eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meetcore_signal_events_total",
			Help: "Total signaling events received by name",
		}, []string{"event"}),

		reconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetcore_reconnects_total",
			Help: "Total signaling channel reconnects",
		}),

		negotiationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetcore_negotiation_failures_total",
			Help: "Total peer negotiations that ended in failure",
		}),

		reconciliationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meetcore_roster_reconciliations_total",
			Help: "Offers that raced their join event, by outcome",
		}, []string{"outcome"}),
	}
}

func (p *PrometheusCollector) SetRosterSize(n int) {
	p.rosterSize.Set(float64(n))
}

func (p *PrometheusCollector) SetConnectionState(state domain.ConnectionState) {
	for _, s := range []domain.ConnectionState{
		domain.StateDisconnected,
		domain.StateConnecting,
		domain.StateConnected,
		domain.StateReconnecting,
	} {
		value := 0.0
		if s == state {
			value = 1.0
		}
		p.connectionState.WithLabelValues(string(s)).Set(value)
	}
}

func (p *PrometheusCollector) SetLinkCount(state domain.PeerLinkState, n int) {
	p.linkCount.WithLabelValues(string(state)).Set(float64(n))
}

func (p *PrometheusCollector) RecordEvent(event string) {
	p.eventsTotal.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) RecordReconnect() {
	p.reconnectsTotal.Inc()
}

func (p *PrometheusCollector) RecordNegotiationFailure() {
	p.negotiationFailures.Inc()
}

func (p *PrometheusCollector) RecordReconciliation(resolved bool) {
	outcome := "timeout"
	if resolved {
		outcome = "resolved"
	}
	p.reconciliationsTotal.WithLabelValues(outcome).Inc()
}
