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

package middleware

import (
	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/middleware/authcheck"
	"github.com/wso2/api-platform/gateway/guard-engine/middleware/jwtauth"
	"github.com/wso2/api-platform/gateway/guard-engine/middleware/ratelimit"
	"github.com/wso2/api-platform/gateway/guard-engine/middleware/rolecheck"
)

// Builtins returns a registry with the built-in factories, counting
// rate limits in-process.
func Builtins() *FactoryRegistry {
	return BuiltinsWithStore(ratelimit.NewMemoryStore())
}

// BuiltinsWithStore returns a registry with the built-in factories,
// counting rate limits in store (e.g. a shared Redis store).
func BuiltinsWithStore(store ratelimit.Store) *FactoryRegistry {
	r := NewFactoryRegistry()
	// Registrations cannot collide on a fresh registry.
	_ = r.Register("authcheck", authcheck.New)
	_ = r.Register("rolecheck", rolecheck.New)
	_ = r.Register("jwtauth", jwtauth.New)
	_ = r.Register("ratelimit", func(name string, params map[string]any) (*guard.Unit, error) {
		return ratelimit.New(name, params, store)
	})
	return r
}
