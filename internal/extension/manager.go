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

// Package extension implements the plugin registration contract: pre/post
// merge segments around user chains and named pipeline publication.
package extension

import (
	"fmt"
	"sync"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/resolver"
)

// Manager collects plugin registrations and composes the pre/user/post
// node sequence for every run. It implements guard.RegistrationContext.
type Manager struct {
	mu       sync.RWMutex
	pre      []guard.Node
	post     []guard.Node
	registry *resolver.Registry
	settings map[string]any
	applied  []string
}

// NewManager creates a manager publishing named pipelines into registry.
// settings is the read-only configuration view handed to plugins.
func NewManager(registry *resolver.Registry, settings map[string]any) *Manager {
	if registry == nil {
		registry = resolver.NewRegistry()
	}
	return &Manager{
		registry: registry,
		settings: settings,
	}
}

// RegisterPreMiddleware appends nodes to run before every chain, in
// registration order.
func (m *Manager) RegisterPreMiddleware(nodes ...guard.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pre = append(m.pre, nodes...)
}

// RegisterPostMiddleware appends nodes to run after every chain, in
// registration order.
func (m *Manager) RegisterPostMiddleware(nodes ...guard.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.post = append(m.post, nodes...)
}

// RegisterMiddleware publishes a named pipeline for Ref resolution.
func (m *Manager) RegisterMiddleware(p *guard.Pipeline) error {
	return m.registry.Register(p)
}

// Setting returns a configuration value by key, read-only.
func (m *Manager) Setting(key string) (any, bool) {
	v, ok := m.settings[key]
	return v, ok
}

// Apply runs each plugin's Register hook. Plugins apply in order; the
// first error aborts startup.
func (m *Manager) Apply(plugins ...guard.Plugin) error {
	for _, p := range plugins {
		if p == nil {
			return fmt.Errorf("%w: nil plugin", guard.ErrConfiguration)
		}
		if err := p.Register(m); err != nil {
			return fmt.Errorf("plugin %q registration failed: %w", p.Name(), err)
		}
		m.mu.Lock()
		m.applied = append(m.applied, p.Name())
		m.mu.Unlock()
	}
	return nil
}

// Compose wraps a user chain with the registered pre and post segments.
func (m *Manager) Compose(user []guard.Node) []guard.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return resolver.Compose(m.pre, user, m.post)
}

// Plugins returns the names of applied plugins in order.
func (m *Manager) Plugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.applied))
	copy(out, m.applied)
	return out
}
