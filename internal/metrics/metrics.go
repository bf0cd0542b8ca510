// Package metrics exposes Prometheus instrumentation for the auction core,
// grounded on the bidding-server's internal/metrics/prometheus.go: one
// struct of pre-registered CounterVec/HistogramVec/Gauge fields built by a
// single constructor, namespaced per binary.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	BidsAccepted       *prometheus.CounterVec
	BidsOutbid         *prometheus.CounterVec
	BidsRejected       *prometheus.CounterVec
	AntiSnipeTriggered prometheus.Counter
	AuctionsClosed     prometheus.Counter

	WSConnectionsActive prometheus.Gauge
	WSFramesDropped     prometheus.Counter

	QueueConsumeDuration *prometheus.HistogramVec
	QueueMessagesAcked   *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "auctionhouse"
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		BidsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bids_accepted_total", Help: "Bids accepted as new high bid.",
		}, []string{"auction_id"}),
		BidsOutbid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bids_outbid_total", Help: "Bids that lost the CAS race.",
		}, []string{"auction_id"}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bids_rejected_total", Help: "Bids rejected by precondition checks.",
		}, []string{"reason"}),
		AntiSnipeTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "anti_snipe_triggered_total", Help: "Anti-snipe extensions applied.",
		}),
		AuctionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "auctions_closed_total", Help: "Auctions closed by the timer controller.",
		}),

		WSConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ws_connections_active", Help: "Currently connected WebSocket clients.",
		}),
		WSFramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ws_frames_dropped_total", Help: "Frames dropped due to a full client send buffer.",
		}),

		QueueConsumeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "queue_consume_duration_seconds", Help: "Time to process one queue delivery.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		QueueMessagesAcked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_messages_acked_total", Help: "Queue deliveries acked.",
		}, []string{"queue", "result"}),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration,
		m.BidsAccepted, m.BidsOutbid, m.BidsRejected, m.AntiSnipeTriggered, m.AuctionsClosed,
		m.WSConnectionsActive, m.WSFramesDropped,
		m.QueueConsumeDuration, m.QueueMessagesAcked,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
