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

package admin

import (
	"encoding/json"
	"net/http"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/agent"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/instrument"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/resolver"
	"github.com/wso2/api-platform/gateway/guard-engine/middleware"
)

// Sources are the live views the admin endpoints read from.
type Sources struct {
	Registry  *resolver.Registry
	Factories *middleware.FactoryRegistry
	Routes    func() map[string][]guard.Node
	Plugins   func() []string
	Recorder  *instrument.DebugRecorder
	Status    *agent.Status
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	// Headers are already out; an encode failure here cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// ConfigDumpHandler handles GET /config_dump requests.
type ConfigDumpHandler struct {
	src Sources
}

// NewConfigDumpHandler creates a new config dump handler.
func NewConfigDumpHandler(src Sources) *ConfigDumpHandler {
	return &ConfigDumpHandler{src: src}
}

// ServeHTTP implements http.Handler.
func (h *ConfigDumpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, DumpConfig(h.src))
}

// ExecutionsResponse is the GET /executions payload.
type ExecutionsResponse struct {
	Enabled         bool                 `json:"enabled"`
	TotalExecutions int                  `json:"total_executions"`
	Executions      []*guard.ChainRecord `json:"executions"`
}

// ExecutionsHandler serves the sanitized execution ring buffer.
type ExecutionsHandler struct {
	recorder *instrument.DebugRecorder
}

// NewExecutionsHandler creates a new executions handler.
func NewExecutionsHandler(recorder *instrument.DebugRecorder) *ExecutionsHandler {
	return &ExecutionsHandler{recorder: recorder}
}

// ServeHTTP implements http.Handler.
func (h *ExecutionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records := h.recorder.Records()
		writeJSON(w, &ExecutionsResponse{
			Enabled:         h.recorder.Enabled(),
			TotalExecutions: len(records),
			Executions:      records,
		})
	case http.MethodDelete:
		h.recorder.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// StatusHandler serves the agent run counters and mode.
type StatusHandler struct {
	status *agent.Status
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(status *agent.Status) *StatusHandler {
	return &StatusHandler{status: status}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.status.Snapshot())
}
