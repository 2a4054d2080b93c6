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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// SlogSink logs a structured summary of each record.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink writing to logger, or slog.Default when nil.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Emit logs the record summary.
func (s *SlogSink) Emit(ctx context.Context, rec *guard.ChainRecord) error {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "Chain run",
		slog.String("record_id", rec.ID),
		slog.String("context_type", string(rec.ContextType)),
		slog.String("path", rec.ContextPath),
		slog.String("state", string(rec.State)),
		slog.Bool("allowed", rec.Allowed),
		slog.String("redirect", rec.Redirect),
		slog.String("reason", rec.Reason),
		slog.Int("stopped_at", rec.StoppedAt),
		slog.Int("steps", len(rec.Steps)),
		slog.Duration("duration", rec.Duration))
	return nil
}

// WriterSink writes one JSON line per record.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

// NewWriterSink creates a JSON-lines sink over w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// NewFileSink opens (or creates, append-only) a JSON-lines file sink.
func NewFileSink(path string) (*WriterSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit output: %w", err)
	}
	return &WriterSink{enc: json.NewEncoder(f), c: f}, nil
}

// Emit writes the record as one JSON line.
func (s *WriterSink) Emit(_ context.Context, rec *guard.ChainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	return nil
}

// Close closes the underlying file, if any.
func (s *WriterSink) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
