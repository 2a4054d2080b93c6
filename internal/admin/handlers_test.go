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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/agent"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/instrument"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/testutils"
)

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, req)
	return recorder
}

func TestConfigDumpHandler(t *testing.T) {
	h := NewConfigDumpHandler(testSources(t))

	recorder := doRequest(t, h, http.MethodGet, "/config_dump")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var dump ConfigDumpResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &dump))

	assert.Equal(t, 4, dump.Factories.TotalFactories)
	assert.Contains(t, dump.Factories.Types, "authcheck")
	require.Equal(t, 1, dump.Pipelines.TotalPipelines)
	assert.Equal(t, "admin-checks", dump.Pipelines.Pipelines[0].Name)
	assert.Equal(t, 2, dump.Pipelines.Pipelines[0].TotalUnits)
	require.Equal(t, 1, dump.Routes.TotalRoutes)
	assert.Equal(t, "/admin", dump.Routes.RouteConfigs[0].Route)
	assert.Equal(t, 2, dump.Routes.RouteConfigs[0].TotalUnits)
	assert.Equal(t, "auth", dump.Routes.RouteConfigs[0].Units[0].Name)
	assert.Equal(t, []string{"security"}, dump.Plugins)
}

func TestConfigDumpHandler_MethodNotAllowed(t *testing.T) {
	h := NewConfigDumpHandler(testSources(t))
	recorder := doRequest(t, h, http.MethodPost, "/config_dump")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func recordRun(recorder *instrument.DebugRecorder, path string) {
	gctx := testutils.NewRouteContext(path, map[string]any{"user": map[string]any{"id": "u-1"}})
	recorder.ObserveStep(gctx, guard.StepRecord{Index: 0, Name: "auth", Result: guard.Allow()})
	recorder.ObserveChain(gctx, &guard.ChainResult{
		State:     guard.StateAllowed,
		Allowed:   true,
		StoppedAt: -1,
		StartedAt: time.Now(),
	})
}

func TestExecutionsHandler(t *testing.T) {
	debugRecorder := instrument.NewDebugRecorder(true, 10, nil)
	recordRun(debugRecorder, "/admin")
	recordRun(debugRecorder, "/api")

	h := NewExecutionsHandler(debugRecorder)

	recorder := doRequest(t, h, http.MethodGet, "/executions")
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp ExecutionsResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	assert.Equal(t, 2, resp.TotalExecutions)
	require.Len(t, resp.Executions, 2)
	assert.Equal(t, "/admin", resp.Executions[0].ContextPath)

	// DELETE clears the ring.
	recorder = doRequest(t, h, http.MethodDelete, "/executions")
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = doRequest(t, h, http.MethodGet, "/executions")
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.TotalExecutions)

	recorder = doRequest(t, h, http.MethodPut, "/executions")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestStatusHandler(t *testing.T) {
	status := agent.NewStatus(agent.ModeEnforce, 0)
	gctx := testutils.NewRouteContext("/x", nil)
	status.ObserveChain(gctx, &guard.ChainResult{State: guard.StateAllowed})
	status.ObserveChain(gctx, &guard.ChainResult{State: guard.StateDenied})

	h := NewStatusHandler(status)

	recorder := doRequest(t, h, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, recorder.Code)

	var snap agent.Snapshot
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &snap))
	assert.Equal(t, agent.ModeEnforce, snap.Mode)
	assert.Equal(t, uint64(2), snap.Runs)
	assert.Equal(t, uint64(1), snap.Allowed)
	assert.Equal(t, uint64(1), snap.Denied)

	recorder = doRequest(t, h, http.MethodPost, "/status")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}
