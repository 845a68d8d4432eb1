// Package obs exposes scheduler state as Prometheus metrics.
package obs

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forky-mcforkface/open-model-zoo/infersched"
)

var (
	descSubmitted = prometheus.NewDesc(
		"inferd_submitted_total",
		"Units of work accepted by the scheduler.",
		nil, nil)
	descEmitted = prometheus.NewDesc(
		"inferd_emitted_total",
		"Results handed to the consumer, in order.",
		nil, nil)
	descBuffered = prometheus.NewDesc(
		"inferd_buffered_results",
		"Completed results waiting for their turn in the sequencer.",
		nil, nil)
	descInFlight = prometheus.NewDesc(
		"inferd_in_flight_slots",
		"Slots currently executing, per policy.",
		[]string{"policy"}, nil)
	descIdle = prometheus.NewDesc(
		"inferd_idle_slots",
		"Idle slots, per policy.",
		[]string{"policy"}, nil)
	descModeFPS = prometheus.NewDesc(
		"inferd_mode_fps",
		"Frames per second in the policy's current window.",
		[]string{"policy"}, nil)
	descModeLatency = prometheus.NewDesc(
		"inferd_mode_latency_seconds",
		"Mean submit-to-emit latency in the policy's current window.",
		[]string{"policy"}, nil)
	descActive = prometheus.NewDesc(
		"inferd_policy_active",
		"1 for the active policy, 0 otherwise.",
		[]string{"policy"}, nil)
)

// SchedulerCollector adapts infersched.Stats snapshots to the Prometheus
// collector contract; each scrape takes one consistent snapshot.
type SchedulerCollector struct {
	sched infersched.Scheduler
}

// NewSchedulerCollector wraps a scheduler for scraping.
func NewSchedulerCollector(sched infersched.Scheduler) *SchedulerCollector {
	return &SchedulerCollector{sched: sched}
}

// Describe implements prometheus.Collector.
func (c *SchedulerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSubmitted
	ch <- descEmitted
	ch <- descBuffered
	ch <- descInFlight
	ch <- descIdle
	ch <- descModeFPS
	ch <- descModeLatency
	ch <- descActive
}

// Collect implements prometheus.Collector.
func (c *SchedulerCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.sched.Stats()

	ch <- prometheus.MustNewConstMetric(descSubmitted, prometheus.CounterValue, float64(st.Submitted))
	ch <- prometheus.MustNewConstMetric(descEmitted, prometheus.CounterValue, float64(st.Emitted))
	ch <- prometheus.MustNewConstMetric(descBuffered, prometheus.GaugeValue, float64(st.Buffered))

	for _, p := range []infersched.Policy{infersched.Throughput, infersched.LowLatency} {
		label := p.String()
		ch <- prometheus.MustNewConstMetric(descInFlight, prometheus.GaugeValue, float64(st.InFlight[p]), label)
		ch <- prometheus.MustNewConstMetric(descIdle, prometheus.GaugeValue, float64(st.IdleSlots[p]), label)
		ch <- prometheus.MustNewConstMetric(descModeFPS, prometheus.GaugeValue, st.Modes[p].FPS, label)
		ch <- prometheus.MustNewConstMetric(descModeLatency, prometheus.GaugeValue, st.Modes[p].AvgLatency.Seconds(), label)
		active := 0.0
		if st.ActivePolicy == p && !st.Switching {
			active = 1.0
		}
		ch <- prometheus.MustNewConstMetric(descActive, prometheus.GaugeValue, active, label)
	}
}

// NewRegistry builds a registry with the scheduler collector plus the
// standard Go and process collectors.
func NewRegistry(sched infersched.Scheduler) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewSchedulerCollector(sched))
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Serve runs the /metrics endpoint until the context is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
