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

// Package engine assembles the chain resolver, executor, instrumentation,
// and audit pipeline into one entry point for running protection chains.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/agent"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/audit"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/celeval"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/config"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/executor"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/extension"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/instrument"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/resolver"
)

// Option customizes engine assembly.
type Option func(*options)

type options struct {
	observers []guard.RunObserver
	sinks     []guard.Sink
	verifier  guard.LicenseVerifier
}

// WithObserver adds a run observer alongside the built-in ones.
func WithObserver(o guard.RunObserver) Option {
	return func(opts *options) {
		opts.observers = append(opts.observers, o)
	}
}

// WithAuditSink adds an audit sink alongside the configured ones. The
// audit dispatcher starts when cfg enables it or any sink is added.
func WithAuditSink(s guard.Sink) Option {
	return func(opts *options) {
		opts.sinks = append(opts.sinks, s)
	}
}

// WithLicenseVerifier sets the hook invoked asynchronously at startup
// with the configured license key.
func WithLicenseVerifier(v guard.LicenseVerifier) Option {
	return func(opts *options) {
		opts.verifier = v
	}
}

// Engine runs protection chains: user nodes wrapped with plugin pre/post
// segments, flattened through the pipeline registry, executed with
// fail-closed semantics, and recorded for debugging and audit.
type Engine struct {
	registry   *resolver.Registry
	evaluator  *celeval.Evaluator
	executor   *executor.ChainExecutor
	manager    *extension.Manager
	recorder   *instrument.DebugRecorder
	benchmark  *instrument.BenchmarkMonitor
	status     *agent.Status
	dispatcher *audit.Dispatcher

	mu     sync.RWMutex
	routes map[string][]guard.Node
}

// New assembles an engine from cfg. The built-in observers (debug
// recorder, benchmark monitor, agent status) are wired according to
// their config sections.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", guard.ErrConfiguration)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	evaluator, err := celeval.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create condition evaluator: %w", err)
	}

	registry := resolver.NewRegistry()
	ge := cfg.GuardEngine

	sanitizer := instrument.NewSanitizer(ge.Debug.SensitiveFields, ge.Debug.MaxDepth)
	recorder := instrument.NewDebugRecorder(ge.Debug.Enabled, ge.Debug.BufferSize, sanitizer)

	benchmark := instrument.NewBenchmarkMonitor(ge.Benchmark.Enabled,
		ge.Benchmark.UnitThreshold, ge.Benchmark.ChainThreshold)

	status := agent.NewStatus(agent.ModeEnforce, 0)

	observers := []guard.RunObserver{recorder, benchmark, status}
	observers = append(observers, o.observers...)

	serviceName := ge.TracingServiceName
	if serviceName == "" {
		serviceName = "guard-engine"
	}

	e := &Engine{
		registry:  registry,
		evaluator: evaluator,
		executor:  executor.NewChainExecutor(evaluator, otel.Tracer(serviceName), observers...),
		manager:   extension.NewManager(registry, ge.RawConfig),
		recorder:  recorder,
		benchmark: benchmark,
		status:    status,
		routes:    make(map[string][]guard.Node),
	}

	sinks := o.sinks
	if ge.Audit.Enabled {
		sinks = append(sinks, audit.NewSlogSink(nil))
		if ge.Audit.Output != "" {
			fileSink, err := audit.NewFileSink(ge.Audit.Output)
			if err != nil {
				return nil, fmt.Errorf("failed to open audit output: %w", err)
			}
			sinks = append(sinks, fileSink)
		}
	}
	if len(sinks) > 0 {
		e.dispatcher = audit.NewDispatcher(audit.Config{
			BufferSize: ge.Audit.BufferSize,
			DropIfFull: ge.Audit.DropIfFull,
		}, sinks...)
	}

	extension.VerifyLicenseAsync(ge.License.Key, o.verifier)

	return e, nil
}

// ApplyPlugins runs each plugin's registration hook. The first error
// aborts and nothing further applies.
func (e *Engine) ApplyPlugins(plugins ...guard.Plugin) error {
	return e.manager.Apply(plugins...)
}

// RegisterPipeline publishes a named pipeline for Ref resolution.
func (e *Engine) RegisterPipeline(p *guard.Pipeline) error {
	return e.registry.Register(p)
}

// SetRoutes replaces the route chain table atomically.
func (e *Engine) SetRoutes(routes map[string][]guard.Node) {
	copied := make(map[string][]guard.Node, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	e.mu.Lock()
	e.routes = copied
	e.mu.Unlock()
}

// Routes returns a copy of the route chain table.
func (e *Engine) Routes() map[string][]guard.Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	copied := make(map[string][]guard.Node, len(e.routes))
	for k, v := range e.routes {
		copied[k] = v
	}
	return copied
}

// RunChain wraps nodes with plugin pre/post segments, resolves the
// sequence, and executes it against gctx. A resolution failure is a
// configuration error; execution faults are reported in the result,
// not as an error.
func (e *Engine) RunChain(ctx context.Context, nodes []guard.Node, gctx *guard.Context) (*guard.ChainResult, error) {
	composed := e.manager.Compose(nodes)
	units, err := resolver.Flatten(composed, e.registry)
	if err != nil {
		return nil, err
	}

	result := e.executor.Execute(ctx, units, gctx)
	e.audit(ctx, gctx, result)
	return result, nil
}

// RunRoute executes the chain registered for route. An unknown route is
// a configuration error.
func (e *Engine) RunRoute(ctx context.Context, route string, gctx *guard.Context) (*guard.ChainResult, error) {
	e.mu.RLock()
	nodes, ok := e.routes[route]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no chain registered for route %q", guard.ErrConfiguration, route)
	}
	return e.RunChain(ctx, nodes, gctx)
}

// RunNamed executes a registered named pipeline.
func (e *Engine) RunNamed(ctx context.Context, name string, gctx *guard.Context) (*guard.ChainResult, error) {
	return e.RunChain(ctx, []guard.Node{guard.Ref(name)}, gctx)
}

func (e *Engine) audit(ctx context.Context, gctx *guard.Context, result *guard.ChainResult) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.Emit(ctx, guard.NewChainRecord(gctx, result))
}

// Records returns the sanitized execution records collected so far.
func (e *Engine) Records() []*guard.ChainRecord {
	return e.recorder.Records()
}

// Recorder exposes the debug recorder, e.g. for the admin API.
func (e *Engine) Recorder() *instrument.DebugRecorder {
	return e.recorder
}

// Warnings returns recent benchmark threshold violations.
func (e *Engine) Warnings() []instrument.ThresholdWarning {
	return e.benchmark.Warnings()
}

// Status exposes the agent status, e.g. for the admin API.
func (e *Engine) Status() *agent.Status {
	return e.status
}

// Registry exposes the pipeline registry, e.g. for the chains loader.
func (e *Engine) Registry() *resolver.Registry {
	return e.registry
}

// Evaluator exposes the condition evaluator, e.g. for load-time
// condition validation.
func (e *Engine) Evaluator() *celeval.Evaluator {
	return e.evaluator
}

// Plugins returns the names of applied plugins in order.
func (e *Engine) Plugins() []string {
	return e.manager.Plugins()
}

// Close drains and stops the audit dispatcher, if one is running.
func (e *Engine) Close() {
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}
