package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlrfid/parse"
	"github.com/bemasher/rtlrfid/protocol"
)

// Metrics exports decode outcomes and inventory statistics.
type Metrics struct {
	attempts   *prometheus.CounterVec // decode attempts by mode and outcome
	epcs       *prometheus.CounterVec // correctly decoded epcs by tag id
	round      prometheus.Gauge
	uniqueTags prometheus.Gauge // distinct tags read this session
	syncPeak   prometheus.Histogram
	halfBit    prometheus.Histogram // estimated epc half-bit length
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlrfid_decode_attempts_total",
				Help: "Decode attempts by decoder mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		epcs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlrfid_epc_reads_total",
				Help: "Correctly decoded EPC replies by partial tag id",
			},
			[]string{"tag"},
		),
		round: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtlrfid_inventory_round",
			Help: "Current inventory round",
		}),
		uniqueTags: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rtlrfid_unique_tags",
			Help: "Distinct tag ids read this session",
		}),
		syncPeak: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtlrfid_sync_peak",
			Help:    "Preamble correlation peak of each decode attempt",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		halfBit: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtlrfid_epc_half_bit_samples",
			Help:    "Estimated half-bit length of EPC replies in samples",
			Buckets: prometheus.LinearBuckets(1, 1, 64),
		}),
	}
}

// Observe records a decode result and the statistics after it.
func (m *Metrics) Observe(res protocol.Result, snap protocol.Snapshot) {
	outcome := "fail"
	switch {
	case res.CRCOK:
		outcome = "ok"
	case !res.Sync.Confident:
		outcome = "nosync"
	}
	m.attempts.WithLabelValues(res.Mode.String(), outcome).Inc()
	m.syncPeak.Observe(res.Sync.Peak)

	if res.Mode == protocol.AwaitingEPC && res.T > 0 {
		m.halfBit.Observe(res.T)
	}

	for _, msg := range res.Messages {
		if epc, ok := msg.(parse.EPC); ok {
			m.epcs.WithLabelValues(strconv.Itoa(int(epc.TagID()))).Inc()
		}
	}

	m.round.Set(float64(snap.Round))
	m.uniqueTags.Set(float64(len(snap.TagReads)))
}

// ServeMetrics serves the registry's metrics on addr until the server fails.
func ServeMetrics(addr string, g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	logrus.Infof("serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Error("metrics server")
	}
}
