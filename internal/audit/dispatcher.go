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

// Package audit fans finalized chain records out to sinks asynchronously.
// Sink failures are isolated and logged; they never reach the run path.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/metrics"
)

const emitTimeout = 5 * time.Second

// Config controls dispatcher buffering behavior.
type Config struct {
	// BufferSize is the channel capacity between the run path and the
	// dispatch goroutine.
	BufferSize int

	// DropIfFull drops records (and counts the drops) when the buffer is
	// full instead of blocking the caller.
	DropIfFull bool
}

// Dispatcher delivers chain records to sinks on a dedicated goroutine.
type Dispatcher struct {
	cfg       Config
	sinks     []guard.Sink
	ch        chan *guard.ChainRecord
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// NewDispatcher creates and starts a dispatcher. With no sinks it still
// runs and discards records, keeping the caller path uniform.
func NewDispatcher(cfg Config, sinks ...guard.Sink) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	d := &Dispatcher{
		cfg:   cfg,
		sinks: sinks,
		ch:    make(chan *guard.ChainRecord, cfg.BufferSize),
		done:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case rec := <-d.ch:
			d.deliver(rec)
		case <-d.done:
			// Drain whatever is already buffered, then exit.
			for {
				select {
				case rec := <-d.ch:
					d.deliver(rec)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(rec *guard.ChainRecord) {
	for _, sink := range d.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.PanicRecoveriesTotal.WithLabelValues("audit_sink").Inc()
					slog.Error("Audit sink panicked", "panic", r, "record_id", rec.ID)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
			defer cancel()
			if err := sink.Emit(ctx, rec); err != nil {
				slog.Error("Audit sink emit failed", "error", err, "record_id", rec.ID)
			}
		}()
	}
}

// Emit hands a record to the dispatcher. Behavior when the buffer is full
// depends on DropIfFull; otherwise Emit blocks until there is room or ctx
// is done.
func (d *Dispatcher) Emit(ctx context.Context, rec *guard.ChainRecord) {
	select {
	case <-d.done:
		return
	default:
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- rec:
		default:
			d.dropped.Add(1)
			metrics.AuditRecordsDroppedTotal.Inc()
		}
		return
	}

	select {
	case d.ch <- rec:
	case <-ctx.Done():
		d.dropped.Add(1)
		metrics.AuditRecordsDroppedTotal.Inc()
	case <-d.done:
	}
}

// Dropped returns the number of records dropped so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting records, drains the buffer, and waits for delivery
// to finish. The record channel itself is never closed, so a concurrent
// Emit can never send on a closed channel.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}
