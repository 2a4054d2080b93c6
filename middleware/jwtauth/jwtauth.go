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

// Package jwtauth validates an HMAC-signed JWT carried in the run
// context and publishes its claims for downstream units.
package jwtauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// Config is the jwtauth middleware configuration.
type Config struct {
	// TokenPath is the dotted context path of the raw token string,
	// e.g. "request.token". A "Bearer " prefix is stripped if present.
	TokenPath string `mapstructure:"token_path"`
	// Secret is the HMAC signing secret.
	Secret string `mapstructure:"secret"`
	// Issuer, when set, must match the token's iss claim.
	Issuer string `mapstructure:"issuer"`
	// Audience, when set, must match the token's aud claim.
	Audience string `mapstructure:"audience"`
	// ClaimsKey is the context key the verified claims are written
	// under. Defaults to "jwt".
	ClaimsKey string `mapstructure:"claims_key"`
	// Redirect is the location denied runs are sent to. Optional.
	Redirect string `mapstructure:"redirect"`
}

// New builds a jwtauth unit from raw params.
func New(name string, params map[string]any) (*guard.Unit, error) {
	var cfg Config
	if err := mapstructure.Decode(params, &cfg); err != nil {
		return nil, fmt.Errorf("%w: jwtauth %q: %v", guard.ErrConfiguration, name, err)
	}
	if cfg.TokenPath == "" {
		return nil, fmt.Errorf("%w: jwtauth %q: 'token_path' parameter is required", guard.ErrConfiguration, name)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: jwtauth %q: 'secret' parameter is required", guard.ErrConfiguration, name)
	}
	if cfg.ClaimsKey == "" {
		cfg.ClaimsKey = "jwt"
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}

	return guard.NewUnit(name, func(ctx context.Context, gctx *guard.Context) (guard.Result, error) {
		v, ok := gctx.GetPath(cfg.TokenPath)
		if !ok {
			return guard.DenyWith(cfg.Redirect, "missing token"), nil
		}
		raw, ok := v.(string)
		if !ok || raw == "" {
			return guard.DenyWith(cfg.Redirect, "missing token"), nil
		}
		raw = strings.TrimPrefix(raw, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, keyFunc, parserOpts...)
		if err != nil || !token.Valid {
			return guard.DenyWith(cfg.Redirect, "invalid token"), nil
		}

		// Publish verified claims for downstream units and conditions.
		gctx.Set(cfg.ClaimsKey, map[string]any(claims))
		return guard.Allow(), nil
	}), nil
}
