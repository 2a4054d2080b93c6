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

package instrument

import (
	"reflect"
	"strings"
)

const (
	redactedMarker     = "[REDACTED]"
	functionMarker     = "[function]"
	depthLimitedMarker = "[depth-limited]"
)

// defaultSensitiveKeys are matched as case-insensitive substrings of map
// keys. A match redacts the value regardless of its type.
var defaultSensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"authorization",
	"credential",
	"private_key",
	"session",
	"cookie",
}

// Sanitizer produces a deep, redacted copy of context values safe to store
// in execution records and expose over the admin API.
type Sanitizer struct {
	keys     []string
	maxDepth int
}

// NewSanitizer creates a sanitizer with the default key set extended by
// extraKeys. maxDepth bounds nested traversal; values past the bound are
// replaced with a marker.
func NewSanitizer(extraKeys []string, maxDepth int) *Sanitizer {
	if maxDepth <= 0 {
		maxDepth = 8
	}
	keys := make([]string, 0, len(defaultSensitiveKeys)+len(extraKeys))
	keys = append(keys, defaultSensitiveKeys...)
	for _, k := range extraKeys {
		keys = append(keys, strings.ToLower(k))
	}
	return &Sanitizer{keys: keys, maxDepth: maxDepth}
}

// Sanitize returns a redacted deep copy of values. The input is never
// mutated.
func (s *Sanitizer) Sanitize(values map[string]any) map[string]any {
	return s.sanitizeMap(values, 0)
}

func (s *Sanitizer) sanitizeMap(m map[string]any, depth int) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s.isSensitive(k) {
			out[k] = redactedMarker
			continue
		}
		out[k] = s.sanitizeValue(v, depth+1)
	}
	return out
}

func (s *Sanitizer) sanitizeValue(v any, depth int) any {
	if v == nil {
		return nil
	}
	if depth > s.maxDepth {
		return depthLimitedMarker
	}

	switch val := v.(type) {
	case map[string]any:
		return s.sanitizeMap(val, depth)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.sanitizeValue(item, depth+1)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	}

	// Callable values cannot be serialized; mark them instead.
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return functionMarker
	}
	return v
}

func (s *Sanitizer) isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range s.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
