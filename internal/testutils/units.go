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

// Package testutils provides mock units and contexts shared by the engine
// test suites.
package testutils

import (
	"context"
	"errors"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
)

// AllowUnit returns a synchronous unit that always allows.
func AllowUnit(name string) *guard.Unit {
	return guard.NewUnit(name, func(context.Context, *guard.Context) (guard.Result, error) {
		return guard.Allow(), nil
	})
}

// DenyUnit returns a synchronous unit that always denies with the given
// redirect and reason.
func DenyUnit(name, redirect, reason string) *guard.Unit {
	return guard.NewUnit(name, func(context.Context, *guard.Context) (guard.Result, error) {
		return guard.DenyWith(redirect, reason), nil
	})
}

// ErrorUnit returns a synchronous unit that faults with err.
func ErrorUnit(name string, err error) *guard.Unit {
	if err == nil {
		err = errors.New("forced fault")
	}
	return guard.NewUnit(name, func(context.Context, *guard.Context) (guard.Result, error) {
		return guard.Result{}, err
	})
}

// PanicUnit returns a synchronous unit that panics with msg.
func PanicUnit(name, msg string) *guard.Unit {
	return guard.NewUnit(name, func(context.Context, *guard.Context) (guard.Result, error) {
		panic(msg)
	})
}

// WritingUnit returns a synchronous unit that writes value under key before
// allowing, for context-sharing tests.
func WritingUnit(name, key string, value any) *guard.Unit {
	return guard.NewUnit(name, func(_ context.Context, gctx *guard.Context) (guard.Result, error) {
		gctx.Set(key, value)
		return guard.Allow(), nil
	})
}

// CallbackUnit returns a synchronous unit driven by fn, the most flexible
// mock shape.
func CallbackUnit(name string, fn guard.Handler) *guard.Unit {
	return guard.NewUnit(name, fn)
}

// DeferredUnit returns a deferred unit that settles asynchronously with the
// given outcome.
func DeferredUnit(name string, out guard.Outcome) *guard.Unit {
	return guard.NewDeferredUnit(name, func(context.Context, *guard.Context) <-chan guard.Outcome {
		ch := make(chan guard.Outcome, 1)
		go func() {
			ch <- out
			close(ch)
		}()
		return ch
	})
}

// ClosedDeferredUnit returns a deferred unit whose channel closes without
// ever settling.
func ClosedDeferredUnit(name string) *guard.Unit {
	return guard.NewDeferredUnit(name, func(context.Context, *guard.Context) <-chan guard.Outcome {
		ch := make(chan guard.Outcome)
		close(ch)
		return ch
	})
}

// StreamUnit returns a stream unit that emits values in order. Values after
// the first exercise the first-value-wins contract.
func StreamUnit(name string, values ...guard.Result) *guard.Unit {
	return guard.NewStreamUnit(name, func(context.Context, *guard.Context) <-chan guard.Result {
		ch := make(chan guard.Result, len(values))
		go func() {
			for _, v := range values {
				ch <- v
			}
			close(ch)
		}()
		return ch
	})
}

// EmptyStreamUnit returns a stream unit whose channel closes before
// emitting anything.
func EmptyStreamUnit(name string) *guard.Unit {
	return guard.NewStreamUnit(name, func(context.Context, *guard.Context) <-chan guard.Result {
		ch := make(chan guard.Result)
		close(ch)
		return ch
	})
}
