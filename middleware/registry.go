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

// Package middleware holds the built-in middleware factories and the
// registry that chain loaders resolve factory names through.
package middleware

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// Factory builds a configured middleware unit. name is the instance name
// the unit will carry in execution records; params is the raw, untyped
// configuration block from the chains file.
type Factory func(name string, params map[string]any) (*guard.Unit, error)

// FactoryRegistry maps factory type names to factories. Safe for
// concurrent use.
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactoryRegistry creates an empty factory registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Register adds a factory under typeName. Registering an empty name, a
// nil factory, or a duplicate is a configuration fault.
func (r *FactoryRegistry) Register(typeName string, f Factory) error {
	if typeName == "" {
		return fmt.Errorf("%w: factory type name cannot be empty", guard.ErrConfiguration)
	}
	if f == nil {
		return fmt.Errorf("%w: factory %q is nil", guard.ErrConfiguration, typeName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typeName]; exists {
		return fmt.Errorf("%w: factory %q already registered", guard.ErrConfiguration, typeName)
	}
	r.factories[typeName] = f
	return nil
}

// Build resolves typeName and invokes the factory.
func (r *FactoryRegistry) Build(typeName, name string, params map[string]any) (*guard.Unit, error) {
	r.mu.RLock()
	f, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown middleware type %q", guard.ErrConfiguration, typeName)
	}
	return f(name, params)
}

// Types returns the registered factory type names, sorted.
func (r *FactoryRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
