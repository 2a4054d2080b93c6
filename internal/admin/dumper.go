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
	"sort"
	"time"

	"github.com/wso2/api-platform/gateway/guard-engine/internal/resolver"
)

// ConfigDumpResponse is the GET /config_dump payload.
type ConfigDumpResponse struct {
	Timestamp time.Time     `json:"timestamp"`
	Factories FactoriesDump `json:"factories"`
	Pipelines PipelinesDump `json:"pipelines"`
	Routes    RoutesDump    `json:"routes"`
	Plugins   []string      `json:"plugins"`
}

// FactoriesDump lists the registered middleware factory types.
type FactoriesDump struct {
	TotalFactories int      `json:"total_factories"`
	Types          []string `json:"types"`
}

// PipelinesDump lists the named pipelines published for Ref resolution.
type PipelinesDump struct {
	TotalPipelines int            `json:"total_pipelines"`
	Pipelines      []PipelineInfo `json:"pipelines"`
}

// PipelineInfo describes one named pipeline.
type PipelineInfo struct {
	Name       string `json:"name"`
	TotalUnits int    `json:"total_units"`
}

// RoutesDump lists the route chains and their flattened units.
type RoutesDump struct {
	TotalRoutes  int           `json:"total_routes"`
	RouteConfigs []RouteConfig `json:"route_configs"`
}

// RouteConfig describes one route's chain.
type RouteConfig struct {
	Route      string     `json:"route"`
	TotalUnits int        `json:"total_units"`
	Units      []UnitInfo `json:"units"`
}

// UnitInfo describes one unit in a flattened chain. Parameters are not
// dumped; they may carry secrets.
type UnitInfo struct {
	Name      string `json:"name"`
	Condition string `json:"condition,omitempty"`
	FailOpen  bool   `json:"fail_open,omitempty"`
}

// DumpConfig assembles the configuration dump from the handler sources.
func DumpConfig(src Sources) *ConfigDumpResponse {
	types := src.Factories.Types()

	pipelines := src.Registry.Dump()
	pipelineInfos := make([]PipelineInfo, 0, len(pipelines))
	for _, p := range pipelines {
		pipelineInfos = append(pipelineInfos, PipelineInfo{
			Name:       p.Name,
			TotalUnits: p.Members,
		})
	}

	return &ConfigDumpResponse{
		Timestamp: time.Now(),
		Factories: FactoriesDump{
			TotalFactories: len(types),
			Types:          types,
		},
		Pipelines: PipelinesDump{
			TotalPipelines: len(pipelineInfos),
			Pipelines:      pipelineInfos,
		},
		Routes:  dumpRoutes(src),
		Plugins: src.Plugins(),
	}
}

// dumpRoutes flattens every route chain so the dump shows execution
// order, not the nested grouping.
func dumpRoutes(src Sources) RoutesDump {
	routes := src.Routes()

	routeConfigs := make([]RouteConfig, 0, len(routes))
	for route, nodes := range routes {
		rc := RouteConfig{Route: route}
		units, err := resolver.Flatten(nodes, src.Registry)
		if err == nil {
			rc.TotalUnits = len(units)
			rc.Units = make([]UnitInfo, 0, len(units))
			for _, u := range units {
				rc.Units = append(rc.Units, UnitInfo{
					Name:      u.Name,
					Condition: u.Condition,
					FailOpen:  u.FailOpen,
				})
			}
		}
		routeConfigs = append(routeConfigs, rc)
	}
	sort.Slice(routeConfigs, func(i, j int) bool {
		return routeConfigs[i].Route < routeConfigs[j].Route
	})

	return RoutesDump{
		TotalRoutes:  len(routeConfigs),
		RouteConfigs: routeConfigs,
	}
}
