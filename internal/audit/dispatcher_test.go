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

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// collectingSink records every emitted record.
type collectingSink struct {
	mu      sync.Mutex
	records []*guard.ChainRecord
	block   chan struct{}
	err     error
}

func (c *collectingSink) Emit(_ context.Context, rec *guard.ChainRecord) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return c.err
}

func (c *collectingSink) all() []*guard.ChainRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*guard.ChainRecord, len(c.records))
	copy(out, c.records)
	return out
}

type panickingSink struct{}

func (panickingSink) Emit(context.Context, *guard.ChainRecord) error {
	panic("sink exploded")
}

func record(id string) *guard.ChainRecord {
	return &guard.ChainRecord{
		ID:          id,
		Timestamp:   time.Now(),
		ContextType: guard.ContextTypeRoute,
		ContextPath: "/admin",
		State:       guard.StateAllowed,
		Allowed:     true,
		StoppedAt:   -1,
	}
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	s1 := &collectingSink{}
	s2 := &collectingSink{}
	d := NewDispatcher(Config{BufferSize: 8}, s1, s2)

	d.Emit(context.Background(), record("r1"))
	d.Emit(context.Background(), record("r2"))
	d.Close()

	require.Len(t, s1.all(), 2)
	require.Len(t, s2.all(), 2)
	assert.Equal(t, "r1", s1.all()[0].ID)
	assert.Equal(t, uint64(0), d.Dropped())
}

func TestDispatcher_CloseDrainsBuffer(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(Config{BufferSize: 64}, sink)

	for i := 0; i < 20; i++ {
		d.Emit(context.Background(), record(fmt.Sprintf("r%d", i)))
	}
	d.Close()

	assert.Len(t, sink.all(), 20)
}

func TestDispatcher_DropIfFull(t *testing.T) {
	unblock := make(chan struct{})
	sink := &collectingSink{block: unblock}
	d := NewDispatcher(Config{BufferSize: 1, DropIfFull: true}, sink)

	// First record occupies the worker; the buffer holds one more; the
	// rest must be dropped without blocking.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), record(fmt.Sprintf("r%d", i)))
	}
	assert.GreaterOrEqual(t, d.Dropped(), uint64(1))

	close(unblock)
	d.Close()
}

func TestDispatcher_SinkErrorAndPanicIsolated(t *testing.T) {
	good := &collectingSink{}
	bad := &collectingSink{err: errors.New("sink down")}
	d := NewDispatcher(Config{BufferSize: 8}, panickingSink{}, bad, good)

	d.Emit(context.Background(), record("r1"))
	d.Close()

	// The failing sinks never prevent delivery to the healthy one.
	require.Len(t, good.all(), 1)
}

func TestDispatcher_EmitAfterCloseIsIgnored(t *testing.T) {
	sink := &collectingSink{}
	d := NewDispatcher(Config{BufferSize: 8}, sink)
	d.Close()

	d.Emit(context.Background(), record("late"))

	assert.Empty(t, sink.all())
}

func TestDispatcher_CloseIdempotent(t *testing.T) {
	d := NewDispatcher(Config{BufferSize: 8})
	d.Close()
	d.Close()
}

func TestWriterSink_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	require.NoError(t, sink.Emit(context.Background(), record("r1")))
	require.NoError(t, sink.Emit(context.Background(), record("r2")))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var decoded guard.ChainRecord
	require.NoError(t, json.Unmarshal(lines[0], &decoded))
	assert.Equal(t, "r1", decoded.ID)
	assert.Equal(t, guard.StateAllowed, decoded.State)
}

func TestFileSink_AppendsToFile(t *testing.T) {
	path := t.TempDir() + "/audit.jsonl"
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Emit(context.Background(), record("r1")))
	require.NoError(t, sink.Close())
}

func TestSlogSink_Emit(t *testing.T) {
	sink := NewSlogSink(nil)
	assert.NoError(t, sink.Emit(context.Background(), record("r1")))
}
