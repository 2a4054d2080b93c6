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

// Package agent tracks aggregate engine health: run counters and an
// operating mode that escalates on sustained faulting.
package agent

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// Mode is the engine operating mode. It is reported through the admin API;
// the executor's verdicts are not altered by it.
type Mode string

const (
	// ModeMonitor observes without expectations.
	ModeMonitor Mode = "monitor"
	// ModeEnforce is the normal protecting mode.
	ModeEnforce Mode = "enforce"
	// ModeStrict marks a hardened posture set by the operator.
	ModeStrict Mode = "strict"
	// ModePanic is entered automatically after sustained faulting.
	ModePanic Mode = "panic"
)

// DefaultPanicThreshold is the consecutive-fault count that trips panic mode.
const DefaultPanicThreshold = 5

// Status aggregates chain outcomes. Safe for concurrent use; counter
// updates are atomic and mode changes take a short lock.
type Status struct {
	runs    atomic.Uint64
	allowed atomic.Uint64
	denied  atomic.Uint64
	faulted atomic.Uint64

	mu                sync.RWMutex
	mode              Mode
	consecutiveFaults int
	panicThreshold    int
}

// NewStatus creates a Status in the given initial mode. threshold <= 0
// uses DefaultPanicThreshold.
func NewStatus(initial Mode, threshold int) *Status {
	if initial == "" {
		initial = ModeEnforce
	}
	if threshold <= 0 {
		threshold = DefaultPanicThreshold
	}
	return &Status{mode: initial, panicThreshold: threshold}
}

// ObserveStep implements guard.RunObserver; per-step events are not
// aggregated here.
func (s *Status) ObserveStep(*guard.Context, guard.StepRecord) {}

// ObserveChain updates counters from a terminal chain result and escalates
// to panic mode after panicThreshold consecutive faults.
func (s *Status) ObserveChain(_ *guard.Context, result *guard.ChainResult) {
	s.runs.Add(1)
	switch result.State {
	case guard.StateAllowed:
		s.allowed.Add(1)
		s.resetFaults()
	case guard.StateDenied:
		s.denied.Add(1)
		s.resetFaults()
	case guard.StateFaulted:
		s.faulted.Add(1)
		s.recordFault()
	}
}

func (s *Status) resetFaults() {
	s.mu.Lock()
	s.consecutiveFaults = 0
	s.mu.Unlock()
}

func (s *Status) recordFault() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFaults++
	if s.consecutiveFaults >= s.panicThreshold && s.mode != ModePanic {
		slog.Error("Escalating to panic mode after consecutive faults",
			"consecutive_faults", s.consecutiveFaults,
			"threshold", s.panicThreshold)
		s.mode = ModePanic
	}
}

// Mode returns the current operating mode.
func (s *Status) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode sets the operating mode and clears the consecutive-fault count.
func (s *Status) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
	s.consecutiveFaults = 0
}

// Snapshot is the admin-facing view of the agent status.
type Snapshot struct {
	Mode              Mode   `json:"mode"`
	Runs              uint64 `json:"runs"`
	Allowed           uint64 `json:"allowed"`
	Denied            uint64 `json:"denied"`
	Faulted           uint64 `json:"faulted"`
	ConsecutiveFaults int    `json:"consecutiveFaults"`
}

// Snapshot returns a point-in-time copy of the counters and mode.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	mode := s.mode
	consecutive := s.consecutiveFaults
	s.mu.RUnlock()
	return Snapshot{
		Mode:              mode,
		Runs:              s.runs.Load(),
		Allowed:           s.allowed.Load(),
		Denied:            s.denied.Load(),
		Faulted:           s.faulted.Load(),
		ConsecutiveFaults: consecutive,
	}
}
