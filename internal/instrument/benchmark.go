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

package instrument

import (
	"log/slog"
	"time"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/metrics"
)

// ThresholdWarning records one duration threshold exceedance.
type ThresholdWarning struct {
	Scope     string        `json:"scope"` // "unit" or "chain"
	Name      string        `json:"name"`
	Duration  time.Duration `json:"duration"`
	Threshold time.Duration `json:"threshold"`
	Timestamp time.Time     `json:"timestamp"`
}

// BenchmarkMonitor is a RunObserver that warns when unit or chain durations
// exceed configured thresholds. It only logs and counts; it never touches
// the verdict.
type BenchmarkMonitor struct {
	enabled        bool
	unitThreshold  time.Duration
	chainThreshold time.Duration
	warnings       *RingBuffer[ThresholdWarning]
}

// NewBenchmarkMonitor creates a monitor. Zero thresholds disable the
// corresponding check.
func NewBenchmarkMonitor(enabled bool, unitThreshold, chainThreshold time.Duration) *BenchmarkMonitor {
	return &BenchmarkMonitor{
		enabled:        enabled,
		unitThreshold:  unitThreshold,
		chainThreshold: chainThreshold,
		warnings:       NewRingBuffer[ThresholdWarning](100),
	}
}

// ObserveStep checks the per-unit threshold.
func (b *BenchmarkMonitor) ObserveStep(gctx *guard.Context, step guard.StepRecord) {
	if !b.enabled || b.unitThreshold <= 0 || step.Skipped {
		return
	}
	if step.Duration <= b.unitThreshold {
		return
	}
	b.warn("unit", step.Name, step.Duration, b.unitThreshold, gctx)
}

// ObserveChain checks the per-chain threshold.
func (b *BenchmarkMonitor) ObserveChain(gctx *guard.Context, result *guard.ChainResult) {
	if !b.enabled || b.chainThreshold <= 0 {
		return
	}
	if result.Duration <= b.chainThreshold {
		return
	}
	b.warn("chain", gctx.Path(), result.Duration, b.chainThreshold, gctx)
}

func (b *BenchmarkMonitor) warn(scope, name string, d, threshold time.Duration, gctx *guard.Context) {
	slog.Warn("Duration threshold exceeded",
		"scope", scope,
		"name", name,
		"duration", d,
		"threshold", threshold,
		"context_type", gctx.Type(),
		"path", gctx.Path())
	metrics.BenchmarkViolationsTotal.WithLabelValues(scope, name).Inc()
	b.warnings.Add(ThresholdWarning{
		Scope:     scope,
		Name:      name,
		Duration:  d,
		Threshold: threshold,
		Timestamp: time.Now(),
	})
}

// Warnings returns recorded exceedances in chronological order.
func (b *BenchmarkMonitor) Warnings() []ThresholdWarning {
	return b.warnings.All()
}
