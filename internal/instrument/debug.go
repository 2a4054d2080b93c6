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
	"sync"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// DebugRecorder is a RunObserver that snapshots the sanitized run context
// after every unit evaluation and keeps finalized chain records in a
// bounded ring buffer. A disabled recorder is a no-op.
type DebugRecorder struct {
	enabled   bool
	sanitizer *Sanitizer
	buffer    *RingBuffer[*guard.ChainRecord]

	mu      sync.Mutex
	pending map[*guard.Context][]guard.StepSnapshot
}

// NewDebugRecorder creates a recorder with the given ring capacity.
func NewDebugRecorder(enabled bool, capacity int, sanitizer *Sanitizer) *DebugRecorder {
	if capacity <= 0 {
		capacity = 100
	}
	if sanitizer == nil {
		sanitizer = NewSanitizer(nil, 0)
	}
	return &DebugRecorder{
		enabled:   enabled,
		sanitizer: sanitizer,
		buffer:    NewRingBuffer[*guard.ChainRecord](capacity),
		pending:   make(map[*guard.Context][]guard.StepSnapshot),
	}
}

// Enabled reports whether the recorder captures anything.
func (d *DebugRecorder) Enabled() bool {
	return d.enabled
}

// ObserveStep snapshots the sanitized context as it stood after this unit.
func (d *DebugRecorder) ObserveStep(gctx *guard.Context, step guard.StepRecord) {
	if !d.enabled {
		return
	}
	snap := guard.StepSnapshot{
		Index:    step.Index,
		Name:     step.Name,
		Snapshot: d.sanitizer.Sanitize(gctx.Values()),
	}
	d.mu.Lock()
	d.pending[gctx] = append(d.pending[gctx], snap)
	d.mu.Unlock()
}

// ObserveChain finalizes the record for this run and pushes it into the
// ring buffer.
func (d *DebugRecorder) ObserveChain(gctx *guard.Context, result *guard.ChainResult) {
	if !d.enabled {
		return
	}
	d.mu.Lock()
	snaps := d.pending[gctx]
	delete(d.pending, gctx)
	d.mu.Unlock()

	rec := guard.NewChainRecord(gctx, result)
	rec.Snapshots = snaps
	rec.Final = d.sanitizer.Sanitize(gctx.Values())
	d.buffer.Add(rec)
}

// Records returns the buffered chain records in chronological order.
func (d *DebugRecorder) Records() []*guard.ChainRecord {
	return d.buffer.All()
}

// Clear drops all buffered records.
func (d *DebugRecorder) Clear() {
	d.buffer.Clear()
}
