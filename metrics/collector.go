// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exports optimizer progress as prometheus metrics.
package metrics

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/curioloop/mma/driver"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mma"

// Collector records driver iterations, labelled by problem name.
type Collector struct {
	iterations *prometheus.CounterVec
	newton     *prometheus.CounterVec
	halvings   *prometheus.CounterVec
	inner      *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	objective  *prometheus.GaugeVec
	change     *prometheus.GaugeVec
	kkt        *prometheus.GaugeVec
	elapsed    *prometheus.HistogramVec
}

var _ driver.Recorder = (*Collector)(nil)

// New creates an unregistered collector.
func New() *Collector {
	label := []string{"problem"}
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, label)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, label)
	}
	return &Collector{
		iterations: counter("outer_iterations_total", "Accepted outer iterations."),
		newton:     counter("newton_steps_total", "Newton steps taken by the subproblem solver."),
		halvings:   counter("step_halvings_total", "Step halvings in the subproblem line search."),
		inner:      counter("inner_iterations_total", "Conservative re-solves of GCMMA subproblems."),
		rejected:   counter("nonconservative_steps_total", "Steps accepted after the re-solve limit without a conservative approximation."),
		objective:  gauge("objective", "Objective value at the start of the last iteration."),
		change:     gauge("design_change", "Largest design change of the last iteration."),
		kkt:        gauge("kkt_residual", "Maximum KKT residual at the last accepted design."),
		elapsed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_seconds",
			Help:      "Wall time of one outer iteration.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}, label),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.iterations, c.newton, c.halvings, c.inner, c.rejected,
		c.objective, c.change, c.kkt, c.elapsed,
	}
}

// Register adds every metric of the collector to r.
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, m := range c.collectors() {
		if err := r.Register(m); err != nil {
			return errors.Wrap(err, "register metric")
		}
	}
	return nil
}

// Observe implements driver.Recorder.
func (c *Collector) Observe(problem string, it driver.Iteration) {
	c.iterations.WithLabelValues(problem).Inc()
	c.newton.WithLabelValues(problem).Add(float64(it.Newton))
	c.halvings.WithLabelValues(problem).Add(float64(it.Halvings))
	c.inner.WithLabelValues(problem).Add(float64(it.Inner))
	if !it.Conservative {
		c.rejected.WithLabelValues(problem).Inc()
	}
	c.objective.WithLabelValues(problem).Set(it.F0)
	c.change.WithLabelValues(problem).Set(it.Change)
	if !math.IsNaN(it.KKT) {
		c.kkt.WithLabelValues(problem).Set(it.KKT)
	}
	c.elapsed.WithLabelValues(problem).Observe(it.Elapsed.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Listen serves /metrics on addr until ctx is done.
func Listen(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrapf(err, "metrics listener %s", addr)
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdown); err != nil {
			return errors.Wrap(err, "shutdown metrics listener")
		}
		return nil
	}
}
