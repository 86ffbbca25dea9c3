// Package metrics exposes the node's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the node's collectors behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	// BlocksFinalized counts finality certificates observed.
	BlocksFinalized prometheus.Counter

	// TxsAdmitted counts transactions accepted into the mempool.
	TxsAdmitted prometheus.Counter

	// TxsRejected counts transactions refused by admission checks.
	TxsRejected prometheus.Counter

	// RoundTimeouts counts consensus round expiries.
	RoundTimeouts prometheus.Counter

	// ChainHeight tracks the latest applied block height.
	ChainHeight prometheus.Gauge

	// MempoolSize tracks pending transactions.
	MempoolSize prometheus.Gauge

	// PeerCount tracks connected peers.
	PeerCount prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.BlocksFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenchain", Subsystem: "consensus", Name: "blocks_finalized_total",
		Help: "Number of finality certificates observed.",
	})
	m.TxsAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenchain", Subsystem: "mempool", Name: "txs_admitted_total",
		Help: "Transactions accepted into the mempool.",
	})
	m.TxsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenchain", Subsystem: "mempool", Name: "txs_rejected_total",
		Help: "Transactions refused by admission checks.",
	})
	m.RoundTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lumenchain", Subsystem: "consensus", Name: "round_timeouts_total",
		Help: "Consensus rounds that expired.",
	})
	m.ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumenchain", Subsystem: "chain", Name: "height",
		Help: "Latest applied block height.",
	})
	m.MempoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumenchain", Subsystem: "mempool", Name: "size",
		Help: "Pending transactions in the mempool.",
	})
	m.PeerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lumenchain", Subsystem: "network", Name: "peers",
		Help: "Connected peers.",
	})

	m.registry.MustRegister(
		m.BlocksFinalized, m.TxsAdmitted, m.TxsRejected,
		m.RoundTimeouts, m.ChainHeight, m.MempoolSize, m.PeerCount,
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the metrics listener in the background.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("Metrics listener stopped", "err", err)
		}
	}()
	return srv
}
