package llmq

import (
	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

// Metrics of the commitment processor. Only goroutine free go-metrics types
// are used, so creating one never leaks a ticker.
type Metrics struct {
	registry metrics.Registry

	received  metrics.Counter // QFCOMMITMENT messages
	accepted  metrics.Counter // candidates that entered the minable cache
	rejected  metrics.Counter // candidates that cost the peer points
	mined     metrics.Counter // non-null commitments persisted from blocks
	undone    metrics.Counter
	minable   metrics.Gauge
	signers   metrics.Histogram // signers count of mined commitments
	badBlocks metrics.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry:  metrics.NewRegistry(),
		received:  metrics.NewCounter(),
		accepted:  metrics.NewCounter(),
		rejected:  metrics.NewCounter(),
		mined:     metrics.NewCounter(),
		undone:    metrics.NewCounter(),
		minable:   metrics.NewGauge(),
		signers:   metrics.NewHistogram(metrics.NewUniformSample(1028)),
		badBlocks: metrics.NewCounter(),
	}
	for name, metric := range map[string]interface{}{
		"received":   m.received,
		"accepted":   m.accepted,
		"rejected":   m.rejected,
		"mined":      m.mined,
		"undone":     m.undone,
		"minable":    m.minable,
		"signers":    m.signers,
		"bad_blocks": m.badBlocks,
	} {
		if err := m.registry.Register(name, metric); err != nil {
			panic(err)
		}
	}
	return m
}

// Registry exposes the underlying go-metrics registry.
func (m *Metrics) Registry() metrics.Registry {
	return m.registry
}

type metricsSnapshot struct {
	Received      int64   `json:"received"`
	Accepted      int64   `json:"accepted"`
	Rejected      int64   `json:"rejected"`
	Mined         int64   `json:"mined"`
	Undone        int64   `json:"undone"`
	Minable       int64   `json:"minable"`
	BadBlocks     int64   `json:"bad_blocks"`
	SignersMean   float64 `json:"signers_mean"`
	SignersMin    int64   `json:"signers_min"`
	SignersMax    int64   `json:"signers_max"`
	SignersSample int64   `json:"signers_count"`
}

// JSONString implements metric.MetricItem.
func (m *Metrics) JSONString() string {
	h := m.signers.Snapshot()
	s, _ := jsoniter.MarshalToString(metricsSnapshot{
		Received:      m.received.Count(),
		Accepted:      m.accepted.Count(),
		Rejected:      m.rejected.Count(),
		Mined:         m.mined.Count(),
		Undone:        m.undone.Count(),
		Minable:       m.minable.Value(),
		BadBlocks:     m.badBlocks.Count(),
		SignersMean:   h.Mean(),
		SignersMin:    h.Min(),
		SignersMax:    h.Max(),
		SignersSample: h.Count(),
	})
	return s
}
