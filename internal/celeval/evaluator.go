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

// Package celeval evaluates unit execution conditions (CEL expressions)
// against the run context, with a compiled-program cache.
package celeval

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// evalCtxPool reuses evaluation context maps to reduce allocations on the
// run path.
var evalCtxPool = sync.Pool{
	New: func() interface{} {
		return make(map[string]interface{}, 4)
	},
}

// Evaluator compiles and evaluates CEL conditions with caching. Safe for
// concurrent use.
type Evaluator struct {
	mu sync.RWMutex

	// Compiled CEL programs cache
	// Key: expression string, Value: compiled cel.Program
	programCache map[string]cel.Program

	env *cel.Env
}

// New creates a CEL evaluator exposing the run context to expressions:
//
//	context     map<string, dyn>  the chain run values
//	contextType string            "route" or "http"
//	path        string            route or request path
func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("contextType", cel.StringType),
		cel.Variable("path", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{
		programCache: make(map[string]cel.Program),
		env:          env,
	}, nil
}

// Evaluate runs expression against gctx and returns its boolean value.
// Non-boolean results are errors.
func (e *Evaluator) Evaluate(expression string, gctx *guard.Context) (bool, error) {
	program, err := e.getOrCompileProgram(expression)
	if err != nil {
		return false, fmt.Errorf("failed to compile CEL expression: %w", err)
	}

	evalCtx := evalCtxPool.Get().(map[string]interface{})
	evalCtx["context"] = gctx.Values()
	evalCtx["contextType"] = string(gctx.Type())
	evalCtx["path"] = gctx.Path()

	result, _, err := program.Eval(evalCtx)

	// Clear and return the map to the pool to avoid retaining references.
	for k := range evalCtx {
		delete(evalCtx, k)
	}
	evalCtxPool.Put(evalCtx)

	if err != nil {
		return false, fmt.Errorf("CEL evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression must return boolean, got %T", result.Value())
	}

	return boolResult, nil
}

// Compile validates and caches expression without evaluating it, for
// fail-fast validation at load time.
func (e *Evaluator) Compile(expression string) error {
	_, err := e.getOrCompileProgram(expression)
	return err
}

// getOrCompileProgram gets a cached program or compiles a new one.
func (e *Evaluator) getOrCompileProgram(expression string) (cel.Program, error) {
	// Check cache first (read lock)
	e.mu.RLock()
	if program, ok := e.programCache[expression]; ok {
		e.mu.RUnlock()
		return program, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock
	if program, ok := e.programCache[expression]; ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation failed: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation failed: %w", err)
	}

	e.programCache[expression] = program
	return program, nil
}
