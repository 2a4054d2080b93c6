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

package guard

import "context"

// Handler is the synchronous unit flavor.
type Handler func(ctx context.Context, gctx *Context) (Result, error)

// DeferredHandler is the asynchronous unit flavor. The returned channel
// must deliver exactly one Outcome; closing it without a send is a fault.
type DeferredHandler func(ctx context.Context, gctx *Context) <-chan Outcome

// StreamHandler is the streaming unit flavor. The executor consumes only
// the first emitted Result and abandons the rest of the stream; a channel
// closed before the first emission is a fault.
type StreamHandler func(ctx context.Context, gctx *Context) <-chan Result

// Node is the closed set of inputs the resolver accepts: *Unit, *Pipeline,
// and *NamedRef. The resolver switches on the concrete kind; anything else
// is rejected as a configuration fault before execution.
type Node interface {
	node()
}

// Unit is a single named middleware. Exactly one of Handler, Deferred, or
// Stream must be set; the executor settles all three flavors through the
// same normalization step.
type Unit struct {
	Name     string
	Handler  Handler
	Deferred DeferredHandler
	Stream   StreamHandler

	// Condition is an optional CEL expression evaluated against the run
	// context; when present and false the unit is skipped.
	Condition string

	// FailOpen lets a non-security unit continue the chain when it faults.
	// The default is fail-closed.
	FailOpen bool
}

func (*Unit) node() {}

// NewUnit creates a synchronous unit.
func NewUnit(name string, h Handler) *Unit {
	return &Unit{Name: name, Handler: h}
}

// NewDeferredUnit creates a deferred unit.
func NewDeferredUnit(name string, h DeferredHandler) *Unit {
	return &Unit{Name: name, Deferred: h}
}

// NewStreamUnit creates a streaming unit.
func NewStreamUnit(name string, h StreamHandler) *Unit {
	return &Unit{Name: name, Stream: h}
}

// Pipeline is a named ordered grouping of nodes. Pipelines nest to any
// depth and flatten to their members in pre-order; an empty pipeline
// contributes nothing.
type Pipeline struct {
	Name    string
	Members []Node
}

func (*Pipeline) node() {}

// NewPipeline creates a pipeline from its members in order.
func NewPipeline(name string, members ...Node) *Pipeline {
	return &Pipeline{Name: name, Members: members}
}

// NamedRef refers to a pipeline registered under a name. Resolution happens
// at flatten time; an unknown name is a configuration fault.
type NamedRef struct {
	Name string
}

func (*NamedRef) node() {}

// Ref creates a reference node to a registered pipeline.
func Ref(name string) *NamedRef {
	return &NamedRef{Name: name}
}
