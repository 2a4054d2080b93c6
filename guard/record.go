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

package guard

import (
	"time"

	"github.com/google/uuid"
)

// State is the terminal state of a chain run.
type State string

const (
	// StateAllowed means every unit allowed and the chain ran to the end.
	StateAllowed State = "allowed"
	// StateDenied means a unit returned a deny verdict and stopped the chain.
	StateDenied State = "denied"
	// StateFaulted means a unit faulted and the chain terminated fail-closed.
	StateFaulted State = "faulted"
)

// StepRecord is the timing and verdict of one unit evaluation within a run.
// Timing is captured unconditionally, independent of instrumentation.
type StepRecord struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Result    Result        `json:"result"`
	Skipped   bool          `json:"skipped,omitempty"`
	FailOpen  bool          `json:"failOpen,omitempty"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}

// ChainResult is what a chain run returns to the calling adapter. The
// adapter acts on Allowed/Redirect/Reason; the engine never performs the
// redirect or cancellation itself.
type ChainResult struct {
	State    State         `json:"state"`
	Allowed  bool          `json:"allowed"`
	Redirect string        `json:"redirect,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	// StoppedAt is the index of the unit that decided the verdict, or -1
	// when the chain ran to completion.
	StoppedAt int           `json:"stoppedAt"`
	Err       error         `json:"-"`
	Steps     []StepRecord  `json:"steps"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// ChainRecord is the finalized, self-contained record of one chain run,
// delivered to audit sinks and kept by the debug recorder. Snapshots are
// present only when the debug recorder populated them, and are always
// sanitized first.
type ChainRecord struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	ContextType ContextType      `json:"contextType"`
	ContextPath string           `json:"contextPath"`
	State       State            `json:"state"`
	Allowed     bool             `json:"allowed"`
	Redirect    string           `json:"redirect,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	StoppedAt   int              `json:"stoppedAt"`
	Duration    time.Duration    `json:"duration"`
	Steps       []StepRecord     `json:"steps"`
	Snapshots   []StepSnapshot   `json:"snapshots,omitempty"`
	Final       map[string]any   `json:"finalSnapshot,omitempty"`
}

// StepSnapshot is a sanitized view of the run context taken after one unit
// evaluation, used for replaying how the context evolved.
type StepSnapshot struct {
	Index    int            `json:"index"`
	Name     string         `json:"name"`
	Snapshot map[string]any `json:"snapshot"`
}

// NewChainRecord builds the audit record for a finished run.
func NewChainRecord(gctx *Context, result *ChainResult) *ChainRecord {
	return &ChainRecord{
		ID:          uuid.NewString(),
		Timestamp:   result.StartedAt,
		ContextType: gctx.Type(),
		ContextPath: gctx.Path(),
		State:       result.State,
		Allowed:     result.Allowed,
		Redirect:    result.Redirect,
		Reason:      result.Reason,
		StoppedAt:   result.StoppedAt,
		Duration:    result.Duration,
		Steps:       result.Steps,
	}
}

// RunObserver receives execution events from the executor. Observers are
// instrumentation only: a panic inside an observer is swallowed and can
// never change the verdict of the run it observes.
type RunObserver interface {
	// ObserveStep is called after each unit evaluation, including skipped
	// and faulted ones.
	ObserveStep(gctx *Context, step StepRecord)
	// ObserveChain is called once when the run reaches a terminal state.
	ObserveChain(gctx *Context, result *ChainResult)
}
