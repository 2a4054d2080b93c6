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

package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/testutils"
)

// mockConditionEvaluator is a configurable mock for condition tests
type mockConditionEvaluator struct {
	result bool
	err    error
	calls  int
}

func (m *mockConditionEvaluator) Evaluate(expression string, gctx *guard.Context) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	return m.result, nil
}

// recordingObserver captures observer callbacks
type recordingObserver struct {
	steps  []guard.StepRecord
	chains []*guard.ChainResult
}

func (r *recordingObserver) ObserveStep(_ *guard.Context, step guard.StepRecord) {
	r.steps = append(r.steps, step)
}

func (r *recordingObserver) ObserveChain(_ *guard.Context, result *guard.ChainResult) {
	r.chains = append(r.chains, result)
}

// panickingObserver panics on every callback
type panickingObserver struct{}

func (panickingObserver) ObserveStep(*guard.Context, guard.StepRecord) { panic("observe step") }
func (panickingObserver) ObserveChain(*guard.Context, *guard.ChainResult) {
	panic("observe chain")
}

func newExecutor(observers ...guard.RunObserver) *ChainExecutor {
	tracer := noop.NewTracerProvider().Tracer("test")
	return NewChainExecutor(nil, tracer, observers...)
}

func TestExecute_AllAllow(t *testing.T) {
	exec := newExecutor()
	units := []*guard.Unit{
		testutils.AllowUnit("a"),
		testutils.AllowUnit("b"),
		testutils.AllowUnit("c"),
	}
	gctx := testutils.NewRouteContext("/home", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.Equal(t, guard.StateAllowed, result.State)
	assert.True(t, result.Allowed)
	assert.Equal(t, -1, result.StoppedAt)
	assert.Empty(t, result.Redirect)
	require.Len(t, result.Steps, 3)
	for i, step := range result.Steps {
		assert.Equal(t, i, step.Index)
		assert.True(t, step.Result.Allowed)
		assert.False(t, step.Skipped)
	}
}

func TestExecute_EmptyChainAllows(t *testing.T) {
	exec := newExecutor()
	gctx := testutils.NewRouteContext("/anything", nil)

	result := exec.Execute(context.Background(), nil, gctx)

	assert.Equal(t, guard.StateAllowed, result.State)
	assert.True(t, result.Allowed)
	assert.Equal(t, -1, result.StoppedAt)
	assert.Empty(t, result.Steps)
}

func TestExecute_ShortCircuitOnDeny(t *testing.T) {
	exec := newExecutor()
	executed := make([]string, 0, 5)
	unit := func(name string, res guard.Result) *guard.Unit {
		return testutils.CallbackUnit(name, func(context.Context, *guard.Context) (guard.Result, error) {
			executed = append(executed, name)
			return res, nil
		})
	}
	units := []*guard.Unit{
		unit("u0", guard.Allow()),
		unit("u1", guard.Allow()),
		unit("u2", guard.DenyWith("/login", "unauthenticated")),
		unit("u3", guard.Allow()),
		unit("u4", guard.Allow()),
	}
	gctx := testutils.NewRouteContext("/admin", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.Equal(t, guard.StateDenied, result.State)
	assert.False(t, result.Allowed)
	assert.Equal(t, 2, result.StoppedAt)
	assert.Equal(t, "/login", result.Redirect)
	assert.Equal(t, "unauthenticated", result.Reason)
	// Units after the denying one never ran.
	assert.Equal(t, []string{"u0", "u1", "u2"}, executed)
	assert.Len(t, result.Steps, 3)
}

func TestExecute_PlainDenyHasNoRedirect(t *testing.T) {
	exec := newExecutor()
	units := []*guard.Unit{testutils.DenyUnit("deny", "", "")}
	gctx := testutils.NewRouteContext("/admin", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.Equal(t, guard.StateDenied, result.State)
	assert.Empty(t, result.Redirect)
	assert.Empty(t, result.Reason)
	assert.Equal(t, 0, result.StoppedAt)
}

func TestExecute_AllowWithRedirectContinues(t *testing.T) {
	exec := newExecutor()
	ran := false
	units := []*guard.Unit{
		testutils.CallbackUnit("informer", func(context.Context, *guard.Context) (guard.Result, error) {
			return guard.AllowWith("/banner", "promo"), nil
		}),
		testutils.CallbackUnit("last", func(context.Context, *guard.Context) (guard.Result, error) {
			ran = true
			return guard.Allow(), nil
		}),
	}
	gctx := testutils.NewRouteContext("/home", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.True(t, result.Allowed)
	assert.True(t, ran, "allow with redirect must not stop the chain")
	assert.Equal(t, guard.StateAllowed, result.State)
	assert.Equal(t, "/banner", result.Redirect)
	assert.Equal(t, -1, result.StoppedAt)
}

func TestExecute_FaultFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		unit *guard.Unit
	}{
		{"error return", testutils.ErrorUnit("bad", errors.New("backend down"))},
		{"panic", testutils.PanicUnit("bad", "boom")},
		{"deferred error", testutils.DeferredUnit("bad", guard.Outcome{Err: errors.New("late failure")})},
		{"deferred closed without settle", testutils.ClosedDeferredUnit("bad")},
		{"stream closed without emit", testutils.EmptyStreamUnit("bad")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newExecutor()
			ran := false
			units := []*guard.Unit{
				testutils.AllowUnit("ok"),
				tt.unit,
				testutils.CallbackUnit("after", func(context.Context, *guard.Context) (guard.Result, error) {
					ran = true
					return guard.Allow(), nil
				}),
			}
			gctx := testutils.NewRouteContext("/admin", nil)

			result := exec.Execute(context.Background(), units, gctx)

			assert.Equal(t, guard.StateFaulted, result.State)
			assert.False(t, result.Allowed, "faults terminate fail-closed")
			assert.Equal(t, 1, result.StoppedAt)
			assert.Equal(t, faultReason, result.Reason)
			require.Error(t, result.Err)
			assert.False(t, ran, "units after the fault must not run")
			require.Len(t, result.Steps, 2)
			assert.Error(t, result.Steps[1].Err)
		})
	}
}

func TestExecute_FailOpenUnitFaultContinues(t *testing.T) {
	exec := newExecutor()
	analytics := testutils.ErrorUnit("analytics", errors.New("sink unavailable"))
	analytics.FailOpen = true
	units := []*guard.Unit{
		analytics,
		testutils.AllowUnit("after"),
	}
	gctx := testutils.NewRouteContext("/home", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.Equal(t, guard.StateAllowed, result.State)
	assert.True(t, result.Allowed)
	assert.Equal(t, -1, result.StoppedAt)
	require.Len(t, result.Steps, 2)
	assert.Error(t, result.Steps[0].Err, "fault is still recorded")
}

func TestExecute_DeferredAllowAndDeny(t *testing.T) {
	exec := newExecutor()
	gctx := testutils.NewRouteContext("/admin", nil)

	result := exec.Execute(context.Background(), []*guard.Unit{
		testutils.DeferredUnit("async-allow", guard.Outcome{Result: guard.Allow()}),
		testutils.DeferredUnit("async-deny", guard.Outcome{Result: guard.DenyWith("/login", "expired")}),
	}, gctx)

	assert.Equal(t, guard.StateDenied, result.State)
	assert.Equal(t, 1, result.StoppedAt)
	assert.Equal(t, "/login", result.Redirect)
}

func TestExecute_StreamFirstValueWins(t *testing.T) {
	exec := newExecutor()
	gctx := testutils.NewRouteContext("/home", nil)

	// Later emissions contradict the first one and must be ignored.
	result := exec.Execute(context.Background(), []*guard.Unit{
		testutils.StreamUnit("stream", guard.Allow(), guard.Deny(), guard.Deny()),
		testutils.AllowUnit("after"),
	}, gctx)

	assert.Equal(t, guard.StateAllowed, result.State)
	assert.True(t, result.Allowed)

	result = exec.Execute(context.Background(), []*guard.Unit{
		testutils.StreamUnit("stream", guard.DenyWith("", "first wins"), guard.Allow()),
	}, gctx)

	assert.Equal(t, guard.StateDenied, result.State)
	assert.Equal(t, "first wins", result.Reason)
}

func TestExecute_ContextSharedAcrossUnits(t *testing.T) {
	exec := newExecutor()
	var seen any
	units := []*guard.Unit{
		testutils.WritingUnit("writer", "user", map[string]any{"id": "u1"}),
		testutils.CallbackUnit("reader", func(_ context.Context, gctx *guard.Context) (guard.Result, error) {
			seen, _ = gctx.GetPath("user.id")
			return guard.Allow(), nil
		}),
	}
	gctx := testutils.NewRouteContext("/profile", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.True(t, result.Allowed)
	assert.Equal(t, "u1", seen)
}

func TestExecute_ConditionSkips(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	cond := &mockConditionEvaluator{result: false}
	exec := NewChainExecutor(cond, tracer)

	guarded := testutils.DenyUnit("guarded-deny", "", "should not run")
	guarded.Condition = `contextType == "http"`

	units := []*guard.Unit{guarded, testutils.AllowUnit("after")}
	gctx := testutils.NewRouteContext("/home", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.True(t, result.Allowed)
	assert.Equal(t, 1, cond.calls)
	require.Len(t, result.Steps, 2)
	assert.True(t, result.Steps[0].Skipped)
	assert.False(t, result.Steps[1].Skipped)
}

func TestExecute_ConditionErrorIsFault(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	cond := &mockConditionEvaluator{err: errors.New("no such attribute")}
	exec := NewChainExecutor(cond, tracer)

	u := testutils.AllowUnit("conditional")
	u.Condition = "bogus"
	gctx := testutils.NewRouteContext("/home", nil)

	result := exec.Execute(context.Background(), []*guard.Unit{u}, gctx)

	assert.Equal(t, guard.StateFaulted, result.State)
	assert.False(t, result.Allowed)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "condition evaluation failed")
}

func TestExecute_ConditionWithoutEvaluatorIsFault(t *testing.T) {
	exec := newExecutor()
	u := testutils.AllowUnit("conditional")
	u.Condition = `context.user.id == "u1"`
	gctx := testutils.NewRouteContext("/home", nil)

	result := exec.Execute(context.Background(), []*guard.Unit{u}, gctx)

	assert.Equal(t, guard.StateFaulted, result.State)
	assert.False(t, result.Allowed)
}

func TestExecute_TimingAlwaysCaptured(t *testing.T) {
	exec := newExecutor()
	units := []*guard.Unit{testutils.AllowUnit("a"), testutils.DenyUnit("b", "", "")}
	gctx := testutils.NewRouteContext("/admin", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.False(t, result.StartedAt.IsZero())
	assert.GreaterOrEqual(t, result.Duration.Nanoseconds(), int64(0))
	for _, step := range result.Steps {
		assert.False(t, step.StartedAt.IsZero())
		assert.GreaterOrEqual(t, step.Duration.Nanoseconds(), int64(0))
	}
}

func TestExecute_ObserversNotified(t *testing.T) {
	obs := &recordingObserver{}
	exec := newExecutor(obs)
	units := []*guard.Unit{
		testutils.AllowUnit("a"),
		testutils.DenyUnit("b", "/login", "nope"),
	}
	gctx := testutils.NewRouteContext("/admin", nil)

	result := exec.Execute(context.Background(), units, gctx)

	require.Len(t, obs.steps, 2)
	assert.Equal(t, "a", obs.steps[0].Name)
	assert.Equal(t, "b", obs.steps[1].Name)
	require.Len(t, obs.chains, 1)
	assert.Equal(t, result, obs.chains[0])
}

func TestExecute_ObserverPanicDoesNotAlterVerdict(t *testing.T) {
	exec := newExecutor(panickingObserver{})
	units := []*guard.Unit{testutils.AllowUnit("a")}
	gctx := testutils.NewRouteContext("/home", nil)

	result := exec.Execute(context.Background(), units, gctx)

	assert.Equal(t, guard.StateAllowed, result.State)
	assert.True(t, result.Allowed)
}

func TestExecute_Deterministic(t *testing.T) {
	exec := newExecutor()
	build := func() []*guard.Unit {
		return []*guard.Unit{
			testutils.AllowUnit("a"),
			testutils.StreamUnit("s", guard.Allow()),
			testutils.DeferredUnit("d", guard.Outcome{Result: guard.DenyWith("/login", "always")}),
			testutils.AllowUnit("never"),
		}
	}

	first := exec.Execute(context.Background(), build(), testutils.NewRouteContext("/x", nil))
	for i := 0; i < 10; i++ {
		got := exec.Execute(context.Background(), build(), testutils.NewRouteContext("/x", nil))
		assert.Equal(t, first.Allowed, got.Allowed)
		assert.Equal(t, first.State, got.State)
		assert.Equal(t, first.Redirect, got.Redirect)
		assert.Equal(t, first.Reason, got.Reason)
		assert.Equal(t, first.StoppedAt, got.StoppedAt)
	}
}

func TestExecute_UnitWithoutHandlerFaults(t *testing.T) {
	// The resolver rejects these up front; the executor still fails closed
	// if one slips through.
	exec := newExecutor()
	gctx := testutils.NewRouteContext("/home", nil)

	result := exec.Execute(context.Background(), []*guard.Unit{{Name: "hollow"}}, gctx)

	assert.Equal(t, guard.StateFaulted, result.State)
	assert.False(t, result.Allowed)
}
