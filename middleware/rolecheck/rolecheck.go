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

// Package rolecheck denies runs whose context principal lacks the
// required roles.
package rolecheck

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// Config is the rolecheck middleware configuration.
type Config struct {
	// RolesPath is the dotted context path of the principal's role
	// list, e.g. "user.roles".
	RolesPath string `mapstructure:"roles_path"`
	// Required lists the roles the principal must hold, all of them.
	Required []string `mapstructure:"required"`
	// Redirect is the location denied runs are sent to. Optional.
	Redirect string `mapstructure:"redirect"`
	// Reason overrides the default denial reason. Optional.
	Reason string `mapstructure:"reason"`
}

const defaultReason = "insufficient role"

// New builds a rolecheck unit from raw params.
func New(name string, params map[string]any) (*guard.Unit, error) {
	var cfg Config
	if err := mapstructure.Decode(params, &cfg); err != nil {
		return nil, fmt.Errorf("%w: rolecheck %q: %v", guard.ErrConfiguration, name, err)
	}
	if cfg.RolesPath == "" {
		return nil, fmt.Errorf("%w: rolecheck %q: 'roles_path' parameter is required", guard.ErrConfiguration, name)
	}
	if len(cfg.Required) == 0 {
		return nil, fmt.Errorf("%w: rolecheck %q: 'required' parameter cannot be empty", guard.ErrConfiguration, name)
	}
	if cfg.Reason == "" {
		cfg.Reason = defaultReason
	}

	return guard.NewUnit(name, func(ctx context.Context, gctx *guard.Context) (guard.Result, error) {
		v, ok := gctx.GetPath(cfg.RolesPath)
		if !ok {
			return guard.DenyWith(cfg.Redirect, cfg.Reason), nil
		}
		held := roleSet(v)
		for _, want := range cfg.Required {
			if !held[want] {
				return guard.DenyWith(cfg.Redirect, cfg.Reason), nil
			}
		}
		return guard.Allow(), nil
	}), nil
}

// roleSet normalizes the context role list, which may arrive as
// []string or []any depending on how the context was populated.
func roleSet(v any) map[string]bool {
	set := make(map[string]bool)
	switch roles := v.(type) {
	case []string:
		for _, r := range roles {
			set[r] = true
		}
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				set[s] = true
			}
		}
	}
	return set
}
