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

// Package ratelimit denies runs that exceed a fixed-window request
// budget, counted per key in a pluggable store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// Store counts a hit against key within the window and reports whether
// the run is still under limit. Store failures are middleware faults,
// not denials.
type Store interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, err error)
}

// Config is the ratelimit middleware configuration.
type Config struct {
	// KeyPath is the dotted context path of the limiting key, e.g.
	// "user.id". When empty the run context path is used, limiting
	// per route.
	KeyPath string `mapstructure:"key_path"`
	// Limit is the number of runs permitted per window.
	Limit int `mapstructure:"limit"`
	// Window is the fixed window size, e.g. "1m".
	Window time.Duration `mapstructure:"window"`
	// Redirect is the location denied runs are sent to. Optional.
	Redirect string `mapstructure:"redirect"`
	// Reason overrides the default denial reason. Optional.
	Reason string `mapstructure:"reason"`
}

const defaultReason = "rate limit exceeded"

// ParseConfig decodes and validates raw ratelimit params.
func ParseConfig(name string, params map[string]any) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ratelimit %q: %v", guard.ErrConfiguration, name, err)
	}
	if err := decoder.Decode(params); err != nil {
		return nil, fmt.Errorf("%w: ratelimit %q: %v", guard.ErrConfiguration, name, err)
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("%w: ratelimit %q: 'limit' must be positive", guard.ErrConfiguration, name)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: ratelimit %q: 'window' must be positive", guard.ErrConfiguration, name)
	}
	if cfg.Reason == "" {
		cfg.Reason = defaultReason
	}
	return &cfg, nil
}

// New builds a ratelimit unit from raw params, counting in store.
func New(name string, params map[string]any, store Store) (*guard.Unit, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: ratelimit %q: store is required", guard.ErrConfiguration, name)
	}
	cfg, err := ParseConfig(name, params)
	if err != nil {
		return nil, err
	}

	return guard.NewUnit(name, func(ctx context.Context, gctx *guard.Context) (guard.Result, error) {
		key := gctx.Path()
		if cfg.KeyPath != "" {
			v, ok := gctx.GetPath(cfg.KeyPath)
			if !ok {
				return guard.Result{}, fmt.Errorf("rate limit key path %q not present in context", cfg.KeyPath)
			}
			key = fmt.Sprintf("%v", v)
		}

		allowed, err := store.Take(ctx, key, cfg.Limit, cfg.Window)
		if err != nil {
			return guard.Result{}, fmt.Errorf("rate limit store: %w", err)
		}
		if !allowed {
			return guard.DenyWith(cfg.Redirect, cfg.Reason), nil
		}
		return guard.Allow(), nil
	}), nil
}
