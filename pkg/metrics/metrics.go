// Package metrics 以Prometheus指标暴露探测结果
package metrics

import (
	"net/http"

	"github.com/Kevin-Rudy/pingwatch/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 实现core.ResultSink，使用独立的Registry
type Collector struct {
	registry *prometheus.Registry

	probes      *prometheus.CounterVec
	rtt         *prometheus.HistogramVec
	lastRTT     *prometheus.GaugeVec
	lossPercent *prometheus.GaugeVec
	ledgerSize  prometheus.Gauge
	logLines    prometheus.Counter
}

// New 创建并注册全部指标
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pingwatch_probes_total",
				Help: "Total number of echo probes by outcome",
			},
			[]string{"target", "status"},
		),
		rtt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pingwatch_rtt_milliseconds",
				Help:    "Round-trip time of successful probes in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 150, 250, 500, 1000, 2500},
			},
			[]string{"target"},
		),
		lastRTT: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pingwatch_last_rtt_ms",
				Help: "Latest successful round-trip time in milliseconds",
			},
			[]string{"target"},
		),
		lossPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pingwatch_loss_percent",
				Help: "Packet loss over the retained ledger",
			},
			[]string{"target"},
		),
		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pingwatch_ledger_observations",
			Help: "Number of observations currently retained",
		}),
		logLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingwatch_session_log_lines_total",
			Help: "Session lifecycle lines emitted",
		}),
	}
	c.registry.MustRegister(c.probes, c.rtt, c.lastRTT, c.lossPercent, c.ledgerSize, c.logLines)
	return c
}

// Handler 返回 /metrics 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) OnObservation(obs core.Observation, stats core.Statistics) {
	c.probes.WithLabelValues(obs.Target, obs.Outcome.String()).Inc()
	if obs.Success() {
		c.rtt.WithLabelValues(obs.Target).Observe(float64(obs.RoundTripMillis))
		c.lastRTT.WithLabelValues(obs.Target).Set(float64(obs.RoundTripMillis))
	}
	c.lossPercent.WithLabelValues(obs.Target).Set(stats.LossPercent)
	c.ledgerSize.Set(float64(stats.Sent))
}

func (c *Collector) OnLogLine(string) {
	c.logLines.Inc()
}

// Reset 清空按目标区分的指标，账本清空时调用
func (c *Collector) Reset() {
	c.lastRTT.Reset()
	c.lossPercent.Reset()
	c.ledgerSize.Set(0)
}
