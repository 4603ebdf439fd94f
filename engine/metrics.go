// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records engine lifecycle counters and reports the memory of live
// engines at scrape time. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	creations *prometheus.CounterVec
	failures  *prometheus.CounterVec
	disposals *prometheus.CounterVec
	cleanups  *prometheus.CounterVec
	active    *prometheus.GaugeVec

	peakDesc  *prometheus.Desc
	inUseDesc *prometheus.Desc

	mu        sync.Mutex
	factories []*Factory
}

// NewMetrics creates metrics registered in a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		creations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engines_created_total",
				Help:      "Total number of engines created",
			},
			[]string{"kind"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_construction_failures_total",
				Help:      "Total number of failed engine constructions",
			},
			[]string{"kind", "reason"},
		),
		disposals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engines_disposed_total",
				Help:      "Total number of engines disposed",
			},
			[]string{"kind"},
		),
		cleanups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_cleanups_total",
				Help:      "Total number of per-thread temporary pool cleanups",
			},
			[]string{"kind"},
		),
		active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "engines_active",
				Help:      "Number of active engines",
			},
			[]string{"kind"},
		),

		peakDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "engine_peak_memory_bytes"),
			"Peak memory usage of an engine since construction",
			[]string{"engine", "kind"}, nil,
		),
		inUseDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "engine_memory_in_use_bytes"),
			"Memory currently in use by an engine",
			[]string{"engine", "kind"}, nil,
		),
	}

	m.registry.MustRegister(
		m.creations,
		m.failures,
		m.disposals,
		m.cleanups,
		m.active,
		memoryCollector{m},
	)
	return m
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) watch(f *Factory) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.factories = append(m.factories, f)
	m.mu.Unlock()
}

func (m *Metrics) created(kind Kind) {
	if m == nil {
		return
	}
	m.creations.WithLabelValues(kind.String()).Inc()
	m.active.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) disposed(kind Kind) {
	if m == nil {
		return
	}
	m.disposals.WithLabelValues(kind.String()).Inc()
	m.active.WithLabelValues(kind.String()).Dec()
}

func (m *Metrics) failed(kind Kind, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind.String(), reason).Inc()
}

func (m *Metrics) cleanedUp(kind Kind) {
	if m == nil {
		return
	}
	m.cleanups.WithLabelValues(kind.String()).Inc()
}

// memoryCollector reads engine memory when the registry is gathered.
type memoryCollector struct {
	m *Metrics
}

func (c memoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.m.peakDesc
	ch <- c.m.inUseDesc
}

func (c memoryCollector) Collect(ch chan<- prometheus.Metric) {
	c.m.mu.Lock()
	factories := append([]*Factory(nil), c.m.factories...)
	c.m.mu.Unlock()

	for _, f := range factories {
		for _, e := range f.engines() {
			peak, err := e.PeakMemoryUsage()
			if err != nil {
				continue
			}
			inUse, err := e.MemoryUsage()
			if err != nil {
				continue
			}
			kind := e.kind.String()
			ch <- prometheus.MustNewConstMetric(c.m.peakDesc, prometheus.GaugeValue, float64(peak), e.id, kind)
			ch <- prometheus.MustNewConstMetric(c.m.inUseDesc, prometheus.GaugeValue, float64(inUse), e.id, kind)
		}
	}
}
