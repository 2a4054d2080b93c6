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

// Package authcheck denies runs whose context does not carry an
// authenticated principal.
package authcheck

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// Config is the authcheck middleware configuration.
type Config struct {
	// AuthPath is the dotted context path of the authenticated flag,
	// e.g. "user.isAuthenticated". It must resolve to boolean true for
	// the run to pass.
	AuthPath string `mapstructure:"auth_path"`
	// Redirect is the location denied runs are sent to. Optional.
	Redirect string `mapstructure:"redirect"`
	// Reason overrides the default denial reason. Optional.
	Reason string `mapstructure:"reason"`
}

const defaultReason = "authentication required"

// New builds an authcheck unit from raw params.
func New(name string, params map[string]any) (*guard.Unit, error) {
	var cfg Config
	if err := mapstructure.Decode(params, &cfg); err != nil {
		return nil, fmt.Errorf("%w: authcheck %q: %v", guard.ErrConfiguration, name, err)
	}
	if cfg.AuthPath == "" {
		return nil, fmt.Errorf("%w: authcheck %q: 'auth_path' parameter is required", guard.ErrConfiguration, name)
	}
	if cfg.Reason == "" {
		cfg.Reason = defaultReason
	}

	return guard.NewUnit(name, func(ctx context.Context, gctx *guard.Context) (guard.Result, error) {
		v, ok := gctx.GetPath(cfg.AuthPath)
		if !ok {
			return guard.DenyWith(cfg.Redirect, cfg.Reason), nil
		}
		authed, ok := v.(bool)
		if !ok || !authed {
			return guard.DenyWith(cfg.Redirect, cfg.Reason), nil
		}
		return guard.Allow(), nil
	}), nil
}
