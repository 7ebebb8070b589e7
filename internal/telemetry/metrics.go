package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// StepMetrics records step outcomes and durations in its own registry so a
// short-lived invocation can push them to a Pushgateway.
type StepMetrics struct {
	registry *prometheus.Registry

	stepCounter           *prometheus.CounterVec
	stepDurationHistogram *prometheus.HistogramVec
	lastRunGauge          *prometheus.GaugeVec
}

func NewStepMetrics() *StepMetrics {
	m := &StepMetrics{
		registry: prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provision_steps_total",
				Help: "Total number of pipeline steps by outcome",
			},
			[]string{"pipeline", "step", "status"},
		),
		stepDurationHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provision_step_duration_seconds",
				Help:    "Duration of pipeline steps in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
			[]string{"pipeline", "step"},
		),
		lastRunGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "provision_last_step_timestamp_seconds",
				Help: "Unix time a step last finished",
			},
			[]string{"pipeline", "step"},
		),
	}
	m.registry.MustRegister(m.stepCounter, m.stepDurationHistogram, m.lastRunGauge)
	return m
}

// Registry exposes the collectors, mainly for tests.
func (m *StepMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// StepStarted implements pipeline.Observer.
func (m *StepMetrics) StepStarted(ctx context.Context, pipeline, step string) (context.Context, func(error)) {
	start := time.Now()
	return ctx, func(err error) {
		status := "success"
		if err != nil {
			status = "failure"
		}
		m.stepCounter.WithLabelValues(pipeline, step, status).Inc()
		m.stepDurationHistogram.WithLabelValues(pipeline, step).Observe(time.Since(start).Seconds())
		m.lastRunGauge.WithLabelValues(pipeline, step).SetToCurrentTime()
	}
}

// Push sends the collected metrics to a Pushgateway, grouped by environment.
func (m *StepMetrics) Push(ctx context.Context, url, environment string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, "parity_provision").
		Gatherer(m.registry).
		Grouping("environment", environment).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
