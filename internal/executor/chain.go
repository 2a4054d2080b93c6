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

// Package executor walks a flattened unit list sequentially, normalizing
// every handler flavor to one verdict per unit, short-circuiting on the
// first deny and terminating fail-closed on faults.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/metrics"
)

// faultReason is the reason reported on fault-terminated chains. The
// detailed error is logged and carried in ChainResult.Err, not exposed to
// the caller-facing reason.
const faultReason = "middleware fault"

// ConditionEvaluator decides whether a unit's execution condition holds
// for the current run context.
type ConditionEvaluator interface {
	Evaluate(expression string, gctx *guard.Context) (bool, error)
}

// ChainExecutor evaluates flattened unit lists. It is stateless apart from
// its collaborators and safe for concurrent use; each run owns its own
// guard.Context.
type ChainExecutor struct {
	cond      ConditionEvaluator
	tracer    trace.Tracer
	observers []guard.RunObserver
}

// NewChainExecutor creates a chain executor. cond may be nil when no unit
// carries an execution condition; tracer must not be nil (use a no-op
// tracer when tracing is disabled).
func NewChainExecutor(cond ConditionEvaluator, tracer trace.Tracer, observers ...guard.RunObserver) *ChainExecutor {
	return &ChainExecutor{
		cond:      cond,
		tracer:    tracer,
		observers: observers,
	}
}

// Execute runs units in order against gctx and returns the terminal result.
// An empty unit list is allowed with no steps. Execute itself never returns
// an error: unit faults terminate the chain fail-closed and are reported in
// the result.
func (c *ChainExecutor) Execute(ctx context.Context, units []*guard.Unit, gctx *guard.Context) *guard.ChainResult {
	startTime := time.Now()
	result := &guard.ChainResult{
		State:     guard.StateAllowed,
		Allowed:   true,
		StoppedAt: -1,
		Steps:     make([]guard.StepRecord, 0, len(units)),
		StartedAt: startTime,
	}

	chainCtx, chainSpan := c.tracer.Start(ctx, fmt.Sprintf("guard.chain %s", gctx.Path()),
		trace.WithSpanKind(trace.SpanKindInternal))
	defer chainSpan.End()

	for i, unit := range units {
		step := c.executeUnit(chainCtx, i, unit, gctx)
		result.Steps = append(result.Steps, step)
		result.Duration = time.Since(startTime)
		c.notifyStep(gctx, step)

		if step.Skipped {
			continue
		}

		if step.Err != nil {
			if unit.FailOpen {
				// Recorded as a fault but the chain continues.
				metrics.UnitExecutionsTotal.WithLabelValues(unit.Name, "faulted").Inc()
				continue
			}
			result.State = guard.StateFaulted
			result.Allowed = false
			result.Reason = faultReason
			result.StoppedAt = i
			result.Err = step.Err
			metrics.UnitExecutionsTotal.WithLabelValues(unit.Name, "faulted").Inc()
			if chainSpan.IsRecording() {
				chainSpan.RecordError(step.Err)
				chainSpan.SetStatus(codes.Error, "unit fault")
			}
			break
		}

		if !step.Result.Allowed {
			result.State = guard.StateDenied
			result.Allowed = false
			result.Redirect = step.Result.Redirect
			result.Reason = step.Result.Reason
			result.StoppedAt = i
			metrics.UnitExecutionsTotal.WithLabelValues(unit.Name, "denied").Inc()
			metrics.ShortCircuitsTotal.WithLabelValues(unit.Name).Inc()
			if chainSpan.IsRecording() {
				chainSpan.SetAttributes(attribute.Bool("guard.short_circuit", true))
			}
			break
		}

		metrics.UnitExecutionsTotal.WithLabelValues(unit.Name, "allowed").Inc()

		// Allow with redirect is informational; carry the latest one forward
		// without stopping the chain.
		if step.Result.Redirect != "" {
			result.Redirect = step.Result.Redirect
			result.Reason = step.Result.Reason
		}
	}

	result.Duration = time.Since(startTime)
	metrics.ChainRunsTotal.WithLabelValues(string(gctx.Type()), string(result.State)).Inc()
	metrics.ChainDurationSeconds.WithLabelValues(string(gctx.Type())).Observe(result.Duration.Seconds())

	if chainSpan.IsRecording() {
		chainSpan.SetAttributes(
			attribute.String("guard.state", string(result.State)),
			attribute.Int("guard.stopped_at", result.StoppedAt),
			attribute.Int("guard.steps", len(result.Steps)),
		)
	}

	c.notifyChain(gctx, result)
	return result
}

// executeUnit evaluates one unit with its own span, condition check, and
// per-unit timing. Faults surface in StepRecord.Err.
func (c *ChainExecutor) executeUnit(ctx context.Context, index int, unit *guard.Unit, gctx *guard.Context) guard.StepRecord {
	unitStart := time.Now()
	step := guard.StepRecord{
		Index:     index,
		Name:      unit.Name,
		StartedAt: unitStart,
		FailOpen:  unit.FailOpen,
	}

	_, span := c.tracer.Start(ctx, fmt.Sprintf("guard.unit %s", unit.Name),
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("guard.unit_name", unit.Name),
			attribute.Int("guard.unit_index", index),
		)
	}

	if unit.Condition != "" {
		if c.cond == nil {
			step.Err = fmt.Errorf("unit %q has an execution condition but no evaluator is configured", unit.Name)
			step.Duration = time.Since(unitStart)
			step.Error = step.Err.Error()
			return step
		}
		met, err := c.cond.Evaluate(unit.Condition, gctx)
		if err != nil {
			if span.IsRecording() {
				span.RecordError(err)
				span.SetStatus(codes.Error, "condition evaluation failed")
			}
			step.Err = fmt.Errorf("condition evaluation failed for unit %q: %w", unit.Name, err)
			step.Duration = time.Since(unitStart)
			step.Error = step.Err.Error()
			return step
		}
		if !met {
			if span.IsRecording() {
				span.SetAttributes(attribute.Bool("guard.unit_skipped", true))
			}
			metrics.UnitSkippedTotal.WithLabelValues(unit.Name, "condition_not_met").Inc()
			step.Skipped = true
			step.Duration = time.Since(unitStart)
			return step
		}
	}

	res, err := settle(ctx, unit, gctx)
	step.Duration = time.Since(unitStart)
	metrics.UnitDurationSeconds.WithLabelValues(unit.Name).Observe(step.Duration.Seconds())

	if span.IsRecording() {
		span.SetAttributes(attribute.Int64("guard.unit_duration_ns", step.Duration.Nanoseconds()))
	}

	if err != nil {
		slog.Error("Unit evaluation fault",
			"unit", unit.Name,
			"index", index,
			"context_type", gctx.Type(),
			"path", gctx.Path(),
			"error", err)
		if span.IsRecording() {
			span.RecordError(err)
			span.SetStatus(codes.Error, "unit fault")
		}
		step.Err = err
		step.Error = err.Error()
		return step
	}

	step.Result = res
	return step
}

// settle normalizes all three handler flavors to one (Result, error). A
// recovered panic, a nil channel, or a channel closed before delivering a
// value are faults. For streams only the first value is consumed; the rest
// of the stream is abandoned without waiting.
func settle(ctx context.Context, unit *guard.Unit, gctx *guard.Context) (res guard.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicRecoveriesTotal.WithLabelValues("executor").Inc()
			res = guard.Result{}
			err = fmt.Errorf("unit %q panicked: %v", unit.Name, r)
		}
	}()

	switch {
	case unit.Handler != nil:
		return unit.Handler(ctx, gctx)

	case unit.Deferred != nil:
		ch := unit.Deferred(ctx, gctx)
		if ch == nil {
			return guard.Result{}, fmt.Errorf("deferred unit %q returned a nil channel", unit.Name)
		}
		out, ok := <-ch
		if !ok {
			return guard.Result{}, fmt.Errorf("deferred unit %q settled without an outcome", unit.Name)
		}
		if out.Err != nil {
			return guard.Result{}, fmt.Errorf("deferred unit %q: %w", unit.Name, out.Err)
		}
		return out.Result, nil

	case unit.Stream != nil:
		ch := unit.Stream(ctx, gctx)
		if ch == nil {
			return guard.Result{}, fmt.Errorf("stream unit %q returned a nil channel", unit.Name)
		}
		first, ok := <-ch
		if !ok {
			return guard.Result{}, fmt.Errorf("stream unit %q closed before emitting a value", unit.Name)
		}
		return first, nil

	default:
		return guard.Result{}, fmt.Errorf("unit %q has no handler", unit.Name)
	}
}

// notifyStep fans a step record out to observers. Observer panics are
// swallowed: instrumentation can never change a verdict.
func (c *ChainExecutor) notifyStep(gctx *guard.Context, step guard.StepRecord) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.PanicRecoveriesTotal.WithLabelValues("observer").Inc()
					slog.Warn("Run observer panicked in ObserveStep", "panic", r)
				}
			}()
			obs.ObserveStep(gctx, step)
		}()
	}
}

func (c *ChainExecutor) notifyChain(gctx *guard.Context, result *guard.ChainResult) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.PanicRecoveriesTotal.WithLabelValues("observer").Inc()
					slog.Warn("Run observer panicked in ObserveChain", "panic", r)
				}
			}()
			obs.ObserveChain(gctx, result)
		}()
	}
}
