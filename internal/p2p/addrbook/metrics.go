package addrbook

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "addrbook"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of peers in the white list.
	WhitePeers metrics.Gauge
	// Number of peers in the gray list.
	GrayPeers metrics.Gauge
	// Number of live bans.
	Bans metrics.Gauge
	// Number of peers marked live-connected.
	ConnectedPeers metrics.Gauge
	// Number of peers evicted to make room in a full list.
	Evictions metrics.Counter
	// Number of gossiped addresses dropped as banned or ineligible.
	DroppedGossip metrics.Counter
	// Number of requests handled, by request.
	Requests metrics.Counter
	// Number of failed peer file saves.
	SaveFailures metrics.Counter
}

// PrometheusMetrics returns Metrics built using the Prometheus client library.
// Every metric carries a "zone" label; use ForZone to bind it. The metrics
// are registered with the default registry, so call this once per process.
func PrometheusMetrics(namespace string) *Metrics {
	zone := []string{"zone"}
	return &Metrics{
		WhitePeers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "white_peers",
			Help:      "Number of peers in the white list.",
		}, zone),
		GrayPeers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "gray_peers",
			Help:      "Number of peers in the gray list.",
		}, zone),
		Bans: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bans",
			Help:      "Number of live bans.",
		}, zone),
		ConnectedPeers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "connected_peers",
			Help:      "Number of peers marked connected.",
		}, zone),
		Evictions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "evictions_total",
			Help:      "Number of peers evicted from a full list.",
		}, zone),
		DroppedGossip: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_gossip_total",
			Help:      "Number of gossiped addresses dropped as banned or ineligible.",
		}, zone),
		Requests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "requests_total",
			Help:      "Number of address book requests handled.",
		}, []string{"zone", "request"}),
		SaveFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "save_failures_total",
			Help:      "Number of failed peer file saves.",
		}, zone),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		WhitePeers:     discard.NewGauge(),
		GrayPeers:      discard.NewGauge(),
		Bans:           discard.NewGauge(),
		ConnectedPeers: discard.NewGauge(),
		Evictions:      discard.NewCounter(),
		DroppedGossip:  discard.NewCounter(),
		Requests:       discard.NewCounter(),
		SaveFailures:   discard.NewCounter(),
	}
}

// ForZone returns a copy of m with the zone label bound.
func (m *Metrics) ForZone(zone string) *Metrics {
	return &Metrics{
		WhitePeers:     m.WhitePeers.With("zone", zone),
		GrayPeers:      m.GrayPeers.With("zone", zone),
		Bans:           m.Bans.With("zone", zone),
		ConnectedPeers: m.ConnectedPeers.With("zone", zone),
		Evictions:      m.Evictions.With("zone", zone),
		DroppedGossip:  m.DroppedGossip.With("zone", zone),
		Requests:       m.Requests.With("zone", zone),
		SaveFailures:   m.SaveFailures.With("zone", zone),
	}
}
