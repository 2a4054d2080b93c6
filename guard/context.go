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

// Package guard defines the public contract of the guard engine: the
// execution context shared across a middleware chain, the verdict model,
// the node variants accepted by the resolver, and the hooks available to
// extensions and observability sinks.
package guard

import "strings"

// ContextType discriminates what kind of traversal a chain run protects.
type ContextType string

const (
	// ContextTypeRoute marks a client-side route transition.
	ContextTypeRoute ContextType = "route"
	// ContextTypeHTTP marks an inbound HTTP request.
	ContextTypeHTTP ContextType = "http"
)

// Context is the mutable state shared by every unit of a single chain run.
// One Context is created per run and passed by reference; writes made by a
// unit are visible to every subsequent unit. A Context is owned by exactly
// one run at a time and is not safe for concurrent mutation.
type Context struct {
	contextType ContextType
	path        string
	values      map[string]any
	aux         *AuxStore
}

// NewContext creates a Context for one chain run. path is the route path or
// request path the run protects; it is carried into execution records.
func NewContext(t ContextType, path string) *Context {
	return &Context{
		contextType: t,
		path:        path,
		values:      make(map[string]any),
		aux:         newAuxStore(),
	}
}

// Type returns the context discriminator.
func (c *Context) Type() ContextType {
	return c.contextType
}

// Path returns the route or request path this run protects.
func (c *Context) Path() string {
	return c.path
}

// Set stores a value under key, overwriting any previous value.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Get returns the value stored under key, or nil when absent.
func (c *Context) Get(key string) any {
	return c.values[key]
}

// Lookup returns the value stored under key and whether it was present.
func (c *Context) Lookup(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Delete removes key from the context.
func (c *Context) Delete(key string) {
	delete(c.values, key)
}

// Values returns the live backing map. Callers that need an isolated view
// must copy it themselves; instrumentation sanitizes before exposing it.
func (c *Context) Values() map[string]any {
	return c.values
}

// GetPath resolves a dotted path such as "user.isAuthenticated" through
// nested map[string]any values. It returns the value at the path and
// whether every segment resolved.
func (c *Context) GetPath(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = c.values
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Aux returns the auxiliary store for coordination data that should stay
// out of the domain key space, such as security headers negotiated between
// units and the transport adapter.
func (c *Context) Aux() *AuxStore {
	return c.aux
}

// AuxStore holds cross-cutting coordination data for a single run.
type AuxStore struct {
	headers map[string]string
	entries map[string]any
}

func newAuxStore() *AuxStore {
	return &AuxStore{
		headers: make(map[string]string),
		entries: make(map[string]any),
	}
}

// SetHeader records a header the transport adapter should apply.
func (a *AuxStore) SetHeader(name, value string) {
	a.headers[name] = value
}

// Headers returns the accumulated headers.
func (a *AuxStore) Headers() map[string]string {
	return a.headers
}

// Set stores an auxiliary entry.
func (a *AuxStore) Set(key string, value any) {
	a.entries[key] = value
}

// Get returns an auxiliary entry and whether it was present.
func (a *AuxStore) Get(key string) (any, bool) {
	v, ok := a.entries[key]
	return v, ok
}
