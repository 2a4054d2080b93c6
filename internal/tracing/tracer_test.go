/*
 * Copyright (c) 2026, WSO2 LLC. (https://www.wso2.com).
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

package tracing

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"

	"github.com/wso2/api-platform/gateway/guard-engine/internal/config"
)

// testOTLPServer is a minimal in-memory OTLP trace collector for testing
type testOTLPServer struct {
	coltracepb.UnimplementedTraceServiceServer
	server   *grpc.Server
	listener net.Listener
	addr     string
}

// Export implements the OTLP trace service Export method
func (s *testOTLPServer) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

// startTestOTLPServer starts a test OTLP server on a random port
func startTestOTLPServer(t *testing.T) *testOTLPServer {
	t.Helper()

	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	testServer := &testOTLPServer{
		server:   server,
		listener: listener,
		addr:     listener.Addr().String(),
	}

	coltracepb.RegisterTraceServiceServer(server, testServer)

	go func() {
		_ = server.Serve(listener)
	}()

	return testServer
}

// stop stops the test OTLP server
func (s *testOTLPServer) stop() {
	s.server.Stop()
	s.listener.Close()
}

func TestInitTracer_Disabled(t *testing.T) {
	cfg := &config.Config{
		TracingConfig: config.TracingConfig{
			Enabled: false,
		},
	}

	shutdown, err := InitTracer(cfg)
	require.NoError(t, err)
	assert.NotNil(t, shutdown)

	// Shutdown should be a no-op
	shutdown()
}

func TestInitTracer_NilConfig(t *testing.T) {
	shutdown, err := InitTracer(nil)
	require.NoError(t, err)
	assert.NotNil(t, shutdown)

	// Shutdown should be a no-op
	shutdown()
}

func TestInitTracer_DisabledWithEndpoint(t *testing.T) {
	cfg := &config.Config{
		TracingConfig: config.TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}

	shutdown, err := InitTracer(cfg)
	require.NoError(t, err)
	assert.NotNil(t, shutdown)

	shutdown()
}

func TestInitTracer_EnabledWithTestServer(t *testing.T) {
	testServer := startTestOTLPServer(t)
	defer testServer.stop()

	cfg := &config.Config{
		TracingConfig: config.TracingConfig{
			Enabled:            true,
			Endpoint:           testServer.addr,
			Insecure:           true,
			ServiceVersion:     "1.0.0",
			BatchTimeout:       time.Second,
			MaxExportBatchSize: 512,
			SamplingRate:       1.0,
		},
		GuardEngine: config.GuardEngine{
			TracingServiceName: "test-guard-engine",
		},
	}

	shutdown, err := InitTracer(cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Call shutdown to clean up
	shutdown()
}

// TestInitTracer_ConfigFallbacks exercises the default substitutions for
// empty or out-of-range settings on the enabled path.
func TestInitTracer_ConfigFallbacks(t *testing.T) {
	testServer := startTestOTLPServer(t)
	defer testServer.stop()

	tests := []struct {
		name    string
		tracing config.TracingConfig
		service string
	}{
		{
			name: "all defaults",
			tracing: config.TracingConfig{
				Enabled:  true,
				Insecure: true,
			},
		},
		{
			name: "negative batch timeout",
			tracing: config.TracingConfig{
				Enabled:      true,
				Insecure:     true,
				BatchTimeout: -5 * time.Second,
			},
		},
		{
			name: "negative max batch size",
			tracing: config.TracingConfig{
				Enabled:            true,
				Insecure:           true,
				MaxExportBatchSize: -100,
			},
		},
		{
			name: "ratio based sampler",
			tracing: config.TracingConfig{
				Enabled:      true,
				Insecure:     true,
				SamplingRate: 0.5,
			},
		},
		{
			name: "sampling rate above one clamps to always",
			tracing: config.TracingConfig{
				Enabled:      true,
				Insecure:     true,
				SamplingRate: 1.5,
			},
		},
		{
			name: "negative sampling rate defaults to always",
			tracing: config.TracingConfig{
				Enabled:      true,
				Insecure:     true,
				SamplingRate: -0.5,
			},
		},
		{
			name: "custom service name",
			tracing: config.TracingConfig{
				Enabled:  true,
				Insecure: true,
			},
			service: "custom-guard-engine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.tracing.Endpoint = testServer.addr
			cfg := &config.Config{
				TracingConfig: tt.tracing,
				GuardEngine: config.GuardEngine{
					TracingServiceName: tt.service,
				},
			}

			shutdown, err := InitTracer(cfg)
			require.NoError(t, err)
			require.NotNil(t, shutdown)
			shutdown()
		})
	}
}

func TestInitTracer_DefaultEndpointFallback(t *testing.T) {
	// When endpoint is empty, it should default to "otel-collector:4317".
	// The exporter connects lazily, so creation succeeds without a
	// reachable collector.
	cfg := &config.Config{
		TracingConfig: config.TracingConfig{
			Enabled:  true,
			Endpoint: "",
			Insecure: true,
		},
	}

	shutdown, err := InitTracer(cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	defer shutdown()
}

func TestInitTracer_SecureConnectionWithoutCerts(t *testing.T) {
	testServer := startTestOTLPServer(t)
	defer testServer.stop()

	// Secure mode: exporter creation should succeed even though the
	// TLS handshake would fail at runtime.
	cfg := &config.Config{
		TracingConfig: config.TracingConfig{
			Enabled:  true,
			Endpoint: testServer.addr,
			Insecure: false,
		},
	}

	shutdown, err := InitTracer(cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	defer shutdown()
}

func TestInitTracer_ShutdownMultipleTimes(t *testing.T) {
	testServer := startTestOTLPServer(t)
	defer testServer.stop()

	cfg := &config.Config{
		TracingConfig: config.TracingConfig{
			Enabled:  true,
			Endpoint: testServer.addr,
			Insecure: true,
		},
	}

	shutdown, err := InitTracer(cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown multiple times without panic
	shutdown()
	shutdown()
}
