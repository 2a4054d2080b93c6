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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

func dummyFactory(name string, _ map[string]any) (*guard.Unit, error) {
	return guard.NewUnit(name, nil), nil
}

func TestFactoryRegistry_Register(t *testing.T) {
	r := NewFactoryRegistry()

	require.NoError(t, r.Register("dummy", dummyFactory))

	err := r.Register("dummy", dummyFactory)
	require.Error(t, err)
	assert.True(t, guard.IsConfiguration(err))
	assert.Contains(t, err.Error(), "already registered")

	assert.Error(t, r.Register("", dummyFactory))
	assert.Error(t, r.Register("nil-factory", nil))
}

func TestFactoryRegistry_Build(t *testing.T) {
	r := NewFactoryRegistry()
	require.NoError(t, r.Register("dummy", dummyFactory))

	unit, err := r.Build("dummy", "instance-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "instance-1", unit.Name)

	_, err = r.Build("nope", "x", nil)
	require.Error(t, err)
	assert.True(t, guard.IsConfiguration(err))
	assert.Contains(t, err.Error(), "unknown middleware type")
}

func TestBuiltins(t *testing.T) {
	r := Builtins()
	assert.Equal(t, []string{"authcheck", "jwtauth", "ratelimit", "rolecheck"}, r.Types())

	unit, err := r.Build("authcheck", "auth", map[string]any{"auth_path": "user.isAuthenticated"})
	require.NoError(t, err)
	assert.Equal(t, "auth", unit.Name)
	assert.NotNil(t, unit.Handler)
}
