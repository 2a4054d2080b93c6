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

package resolver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// Registry holds named pipelines for NamedRef resolution. It is safe for
// concurrent use; registration typically happens at startup while lookups
// happen on every chain resolution.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*guard.Pipeline
}

// NewRegistry creates an empty pipeline registry.
func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]*guard.Pipeline)}
}

// Register publishes a pipeline under its name. Registering an unnamed or
// already-registered name is an error.
func (r *Registry) Register(p *guard.Pipeline) error {
	if p == nil {
		return fmt.Errorf("%w: cannot register nil pipeline", guard.ErrConfiguration)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: cannot register unnamed pipeline", guard.ErrConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pipelines[p.Name]; exists {
		return fmt.Errorf("%w: pipeline %q already registered", guard.ErrConfiguration, p.Name)
	}
	r.pipelines[p.Name] = p
	return nil
}

// Get returns the pipeline registered under name.
func (r *Registry) Get(name string) (*guard.Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[name]
	return p, ok
}

// PipelineInfo is the admin-facing summary of one registered pipeline.
type PipelineInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Dump returns a sorted summary of all registered pipelines.
func (r *Registry) Dump() []PipelineInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]PipelineInfo, 0, len(r.pipelines))
	for name, p := range r.pipelines {
		infos = append(infos, PipelineInfo{Name: name, Members: len(p.Members)})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
