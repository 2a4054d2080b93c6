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

// Package instrument holds the optional run instrumentation: sanitized
// execution recording and duration threshold monitoring. Everything here is
// observer-side and can never change a chain verdict.
package instrument

import "sync"

// RingBuffer is a fixed-capacity buffer of chain records. When full, Add
// overwrites the oldest entry. Safe for concurrent use.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	count int
	cap   int
}

// NewRingBuffer creates a ring buffer with the given capacity. Non-positive
// capacities fall back to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		items: make([]T, capacity),
		cap:   capacity,
	}
}

// Add appends an item, overwriting the oldest when full.
func (r *RingBuffer[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.count) % r.cap
	r.items[idx] = item
	if r.count < r.cap {
		r.count++
	} else {
		r.head = (r.head + 1) % r.cap
	}
}

// All returns the buffered items in chronological order, oldest first.
func (r *RingBuffer[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.items[(r.head+i)%r.cap]
	}
	return out
}

// Len returns the number of buffered items.
func (r *RingBuffer[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *RingBuffer[T]) Cap() int {
	return r.cap
}

// Clear drops all buffered items.
func (r *RingBuffer[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.count = 0
}
