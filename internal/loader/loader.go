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

// Package loader reads the YAML chains file, builds middleware units
// through the factory registry, and publishes named pipelines. All
// validation is fail-fast: a bad file loads nothing.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/celeval"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/metrics"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/resolver"
	"github.com/wso2/api-platform/gateway/guard-engine/middleware"
)

// NodeSpec is one entry in a units list. Exactly one of Type, Pipeline,
// or Units must be set: a middleware unit, a reference to a named
// pipeline, or an inline group.
type NodeSpec struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Params   map[string]any `yaml:"params"`
	When     string         `yaml:"when"`
	FailOpen bool           `yaml:"fail_open"`
	Pipeline string         `yaml:"pipeline"`
	Units    []NodeSpec     `yaml:"units"`
}

// PipelineSpec declares a named, reusable pipeline.
type PipelineSpec struct {
	Name  string     `yaml:"name"`
	Units []NodeSpec `yaml:"units"`
}

// ChainSpec binds a chain of units to a route.
type ChainSpec struct {
	Route string     `yaml:"route"`
	Units []NodeSpec `yaml:"units"`
}

// File is the chains file document.
type File struct {
	Pipelines []PipelineSpec `yaml:"pipelines"`
	Chains    []ChainSpec    `yaml:"chains"`
}

// Loader builds chains from specs.
type Loader struct {
	factories *middleware.FactoryRegistry
	registry  *resolver.Registry
	evaluator *celeval.Evaluator
}

// NewLoader creates a loader building units through factories,
// publishing named pipelines into registry, and validating conditions
// with evaluator.
func NewLoader(factories *middleware.FactoryRegistry, registry *resolver.Registry, evaluator *celeval.Evaluator) *Loader {
	return &Loader{
		factories: factories,
		registry:  registry,
		evaluator: evaluator,
	}
}

// LoadFromFile reads and applies a YAML chains file. Returns the route
// chains keyed by route path. Named pipelines are registered first so
// chains can reference them.
func (l *Loader) LoadFromFile(path string) (map[string][]guard.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains file %s: %w", path, err)
	}
	return l.Load(data)
}

// Load parses and applies a YAML chains document.
func (l *Loader) Load(data []byte) (map[string][]guard.Node, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chains file: %w", err)
	}

	// Build everything before touching the registry so a bad document
	// applies nothing.
	pipelines := make([]*guard.Pipeline, 0, len(file.Pipelines))
	for _, spec := range file.Pipelines {
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: pipeline name is required", guard.ErrConfiguration)
		}
		members, err := l.buildNodes(spec.Units)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: %w", spec.Name, err)
		}
		pipelines = append(pipelines, guard.NewPipeline(spec.Name, members...))
	}

	routes := make(map[string][]guard.Node, len(file.Chains))
	for _, spec := range file.Chains {
		if spec.Route == "" {
			return nil, fmt.Errorf("%w: chain route is required", guard.ErrConfiguration)
		}
		if _, exists := routes[spec.Route]; exists {
			return nil, fmt.Errorf("%w: duplicate chain for route %q", guard.ErrConfiguration, spec.Route)
		}
		nodes, err := l.buildNodes(spec.Units)
		if err != nil {
			return nil, fmt.Errorf("chain %q: %w", spec.Route, err)
		}
		routes[spec.Route] = nodes
	}

	for _, p := range pipelines {
		if err := l.registry.Register(p); err != nil {
			return nil, err
		}
	}

	// References must resolve against the registry once everything is
	// published.
	for route, nodes := range routes {
		if _, err := resolver.Flatten(nodes, l.registry); err != nil {
			return nil, fmt.Errorf("chain %q: %w", route, err)
		}
		slog.InfoContext(context.Background(), "Loaded middleware chain for route",
			"route", route,
			"units", len(nodes))
	}

	metrics.ChainsLoaded.Set(float64(len(routes)))
	return routes, nil
}

// buildNodes converts specs to nodes, building units through the
// factory registry.
func (l *Loader) buildNodes(specs []NodeSpec) ([]guard.Node, error) {
	nodes := make([]guard.Node, 0, len(specs))
	for i, spec := range specs {
		node, err := l.buildNode(spec)
		if err != nil {
			return nil, fmt.Errorf("unit[%d]: %w", i, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (l *Loader) buildNode(spec NodeSpec) (guard.Node, error) {
	set := 0
	if spec.Type != "" {
		set++
	}
	if spec.Pipeline != "" {
		set++
	}
	if len(spec.Units) > 0 {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: exactly one of 'type', 'pipeline', or 'units' must be set", guard.ErrConfiguration)
	}

	switch {
	case spec.Pipeline != "":
		return guard.Ref(spec.Pipeline), nil

	case len(spec.Units) > 0:
		members, err := l.buildNodes(spec.Units)
		if err != nil {
			return nil, err
		}
		return guard.NewPipeline(spec.Name, members...), nil

	default:
		name := spec.Name
		if name == "" {
			name = spec.Type
		}
		unit, err := l.factories.Build(spec.Type, name, spec.Params)
		if err != nil {
			return nil, err
		}
		if spec.When != "" {
			// Validate the condition at load time so a typo fails the
			// file instead of faulting every run.
			if err := l.evaluator.Compile(spec.When); err != nil {
				return nil, fmt.Errorf("%w: unit %q condition: %v", guard.ErrConfiguration, name, err)
			}
			unit.Condition = spec.When
		}
		unit.FailOpen = spec.FailOpen
		return unit, nil
	}
}
