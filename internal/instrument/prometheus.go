// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package instrument holds the Prometheus metrics of the client. The
// counters add up across every Client in the process, the gauges
// describe a single Client.
package instrument

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigrelay_requests_total",
			Help: "Number of requests sent to the relay",
		},
		[]string{"family"},
	)
	outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigrelay_outcomes_total",
			Help: "Number of requests reaching a terminal outcome",
		},
		[]string{"family", "outcome"},
	)
	inbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigrelay_inbound_messages_total",
			Help: "Number of messages pushed by the relay",
		},
		[]string{"kind"},
	)
	discarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigrelay_discarded_messages_total",
			Help: "Number of inbound messages dropped without being stored",
		},
		[]string{"kind"},
	)
	decodeAnomalies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigrelay_decode_anomalies_total",
			Help: "Number of matching messages discarded because their payload failed to decrypt",
		},
		[]string{"kind"},
	)
	// The gauges are process wide. With more than one Client in a
	// process they report whichever Client updated them last.
	pendingMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sigrelay_pending_messages",
			Help: "Number of messages held by the pending message store",
		},
	)
	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sigrelay_connected",
			Help: "Whether the relay connection is up",
		},
	)
)

func init() {
	prometheus.MustRegister(requests)
	prometheus.MustRegister(outcomes)
	prometheus.MustRegister(inbound)
	prometheus.MustRegister(discarded)
	prometheus.MustRegister(decodeAnomalies)
	prometheus.MustRegister(pendingMessages)
	prometheus.MustRegister(connected)
}

// Init serves /metrics on addr until the returned server is shut down.
// An empty addr disables the endpoint and returns a nil server.
func Init(addr string) (*http.Server, error) {
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go srv.Serve(ln)
	return srv, nil
}

// Request counts a request sent for family.
func Request(family string) {
	requests.WithLabelValues(family).Inc()
}

// Outcome counts a terminal outcome for family.
func Outcome(family, outcome string) {
	outcomes.WithLabelValues(family, outcome).Inc()
}

// Inbound counts an inbound message.
func Inbound(kind string) {
	inbound.WithLabelValues(kind).Inc()
}

// Discarded counts an inbound message of an unknown kind.
func Discarded(kind string) {
	discarded.WithLabelValues(kind).Inc()
}

// DecodeAnomaly counts a message dropped after failing to decrypt.
func DecodeAnomaly(kind string) {
	decodeAnomalies.WithLabelValues(kind).Inc()
}

// PendingMessages sets the size of the pending message store.
func PendingMessages(n int) {
	pendingMessages.Set(float64(n))
}

// Connected records the connection state.
func Connected(up bool) {
	if up {
		connected.Set(1)
		return
	}
	connected.Set(0)
}
