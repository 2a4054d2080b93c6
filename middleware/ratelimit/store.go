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

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// sweepInterval bounds how often Take scans for expired windows, so keys
// that stop arriving (e.g. per-user keys) do not accumulate forever.
const sweepInterval = time.Minute

// MemoryStore is an in-process fixed-window counter. Suitable for a
// single instance; use RedisStore when counts must be shared.
type MemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

type window struct {
	start time.Time
	size  time.Duration
	count int
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Take counts a hit for key, resetting the window when it has elapsed.
func (s *MemoryStore) Take(_ context.Context, key string, limit int, windowSize time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
		s.lastSweep = now
	}

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= windowSize {
		s.windows[key] = &window{start: now, size: windowSize, count: 1}
		return limit >= 1, nil
	}
	w.count++
	return w.count <= limit, nil
}

// sweep drops windows that have elapsed. Caller holds the lock.
func (s *MemoryStore) sweep(now time.Time) {
	for key, w := range s.windows {
		if now.Sub(w.start) >= w.size {
			delete(s.windows, key)
		}
	}
}

// RedisStore counts hits in Redis so multiple instances share one
// budget. Each key's counter expires with its window.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store on client. prefix namespaces the keys;
// empty means "guard:ratelimit".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "guard:ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Take increments the key's counter and sets the window expiry on first
// hit. INCR+EXPIRE run in one pipeline round trip.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, windowSize time.Duration) (bool, error) {
	redisKey := s.prefix + ":" + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, windowSize)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return incr.Val() <= int64(limit), nil
}
