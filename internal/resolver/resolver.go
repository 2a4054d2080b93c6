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

// Package resolver flattens chain definitions (units, nested pipelines,
// named references) into the ordered unit list the executor walks.
package resolver

import (
	"fmt"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// Flatten resolves nodes into a flat, pre-order unit list. Pipelines are
// expanded in place to any nesting depth; NamedRef nodes are looked up in
// reg. Malformed input (nil node, unit without a handler, unknown or
// cyclic reference) is a configuration fault and no unit list is produced.
func Flatten(nodes []guard.Node, reg *Registry) ([]*guard.Unit, error) {
	units := make([]*guard.Unit, 0, len(nodes))
	if err := flattenInto(&units, nodes, reg, nil); err != nil {
		return nil, err
	}
	return units, nil
}

// expanding tracks the named pipelines on the current expansion path.
// Inline pipelines nest as pure data and cannot cycle; references resolve
// through the registry and can, so a revisit is a configuration fault.
func flattenInto(units *[]*guard.Unit, nodes []guard.Node, reg *Registry, expanding map[string]bool) error {
	for _, node := range nodes {
		switch n := node.(type) {
		case *guard.Unit:
			if n == nil {
				return fmt.Errorf("%w: nil unit in chain", guard.ErrConfiguration)
			}
			if err := validateUnit(n); err != nil {
				return err
			}
			*units = append(*units, n)
		case *guard.Pipeline:
			if n == nil {
				return fmt.Errorf("%w: nil pipeline in chain", guard.ErrConfiguration)
			}
			if err := flattenInto(units, n.Members, reg, expanding); err != nil {
				return err
			}
		case *guard.NamedRef:
			if n == nil {
				return fmt.Errorf("%w: nil pipeline reference in chain", guard.ErrConfiguration)
			}
			if reg == nil {
				return fmt.Errorf("%w: reference %q used without a pipeline registry", guard.ErrConfiguration, n.Name)
			}
			if expanding[n.Name] {
				return fmt.Errorf("%w: cyclic pipeline reference %q", guard.ErrConfiguration, n.Name)
			}
			p, ok := reg.Get(n.Name)
			if !ok {
				return fmt.Errorf("%w: unknown pipeline reference %q", guard.ErrConfiguration, n.Name)
			}
			if expanding == nil {
				expanding = make(map[string]bool)
			}
			expanding[n.Name] = true
			if err := flattenInto(units, p.Members, reg, expanding); err != nil {
				return err
			}
			delete(expanding, n.Name)
		case nil:
			return fmt.Errorf("%w: nil node in chain", guard.ErrConfiguration)
		default:
			return fmt.Errorf("%w: unsupported node type %T", guard.ErrConfiguration, node)
		}
	}
	return nil
}

func validateUnit(u *guard.Unit) error {
	flavors := 0
	if u.Handler != nil {
		flavors++
	}
	if u.Deferred != nil {
		flavors++
	}
	if u.Stream != nil {
		flavors++
	}
	switch flavors {
	case 0:
		return fmt.Errorf("%w: unit %q has no handler", guard.ErrConfiguration, u.Name)
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: unit %q has more than one handler flavor", guard.ErrConfiguration, u.Name)
	}
}

// Compose concatenates the extension merge segments around a user chain.
// Order is pre ++ user ++ post; within each segment the registration order
// is preserved and nothing is deduplicated or reordered.
func Compose(pre, user, post []guard.Node) []guard.Node {
	out := make([]guard.Node, 0, len(pre)+len(user)+len(post))
	out = append(out, pre...)
	out = append(out, user...)
	out = append(out, post...)
	return out
}
