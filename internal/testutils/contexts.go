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

package testutils

import (
	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// NewRouteContext creates a route-typed guard context pre-populated with
// values, the common shape for executor and middleware tests.
func NewRouteContext(path string, values map[string]any) *guard.Context {
	gctx := guard.NewContext(guard.ContextTypeRoute, path)
	for k, v := range values {
		gctx.Set(k, v)
	}
	return gctx
}

// NewHTTPContext creates an http-typed guard context pre-populated with
// values.
func NewHTTPContext(path string, values map[string]any) *guard.Context {
	gctx := guard.NewContext(guard.ContextTypeHTTP, path)
	for k, v := range values {
		gctx.Set(k, v)
	}
	return gctx
}

// AuthenticatedUser returns the conventional user sub-object an auth unit
// reads from the context.
func AuthenticatedUser(id string, roles ...string) map[string]any {
	roleList := make([]any, len(roles))
	for i, r := range roles {
		roleList[i] = r
	}
	return map[string]any{
		"id":              id,
		"isAuthenticated": true,
		"roles":           roleList,
	}
}

// AnonymousUser returns the conventional unauthenticated user sub-object.
func AnonymousUser() map[string]any {
	return map[string]any{
		"isAuthenticated": false,
	}
}
