/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package metrics defines the Prometheus collectors of the guard engine and
// the HTTP server that exposes them.
package metrics

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "guard_engine"

var (
	once     sync.Once
	registry *prometheus.Registry

	ChainRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_runs_total",
			Help:      "Total number of chain runs by terminal state",
		},
		[]string{"context_type", "state"},
	)

	ChainDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chain_duration_seconds",
			Help:      "Wall-clock duration of full chain runs in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"context_type"},
	)

	UnitExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_executions_total",
			Help:      "Total number of unit evaluations by outcome",
		},
		[]string{"unit", "status"},
	)

	UnitDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unit_duration_seconds",
			Help:      "Duration of individual unit evaluations in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"unit"},
	)

	ShortCircuitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "short_circuits_total",
			Help:      "Total number of chains stopped early by a deny verdict",
		},
		[]string{"unit"},
	)

	UnitSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_skipped_total",
			Help:      "Total number of units skipped before evaluation",
		},
		[]string{"unit", "reason"},
	)

	PanicRecoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panic_recoveries_total",
			Help:      "Total number of panics recovered",
		},
		[]string{"component"},
	)

	BenchmarkViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "benchmark_violations_total",
			Help:      "Total number of duration threshold exceedances",
		},
		[]string{"scope", "name"},
	)

	AuditRecordsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Total number of audit records dropped because the dispatcher buffer was full",
		},
	)

	ChainsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chains_loaded",
			Help:      "Number of route chains currently loaded",
		},
	)

	Up = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Guard engine liveness indicator (1=up, 0=down)",
		},
	)

	Goroutines = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
		func() float64 {
			return float64(runtime.NumGoroutine())
		},
	)

	MemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_bytes",
			Help:      "Memory usage in bytes",
		},
		[]string{"type"},
	)
)

// Init registers all collectors into a dedicated registry. Safe to call
// more than once; only the first call registers.
func Init() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		registry.MustRegister(
			ChainRunsTotal,
			ChainDurationSeconds,
			UnitExecutionsTotal,
			UnitDurationSeconds,
			ShortCircuitsTotal,
			UnitSkippedTotal,
			PanicRecoveriesTotal,
			BenchmarkViolationsTotal,
			AuditRecordsDroppedTotal,
			ChainsLoaded,
			Up,
			Goroutines,
			MemoryBytes,
		)

		Up.Set(1)
	})

	return registry
}

// GetRegistry returns the prometheus registry, initializing it on demand.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return Init()
	}
	return registry
}

// UpdateMemoryMetrics refreshes the runtime memory gauges.
func UpdateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryBytes.WithLabelValues("heap_alloc").Set(float64(m.HeapAlloc))
	MemoryBytes.WithLabelValues("heap_sys").Set(float64(m.HeapSys))
	MemoryBytes.WithLabelValues("stack").Set(float64(m.StackInuse))
}
