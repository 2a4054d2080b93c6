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

// Result is the verdict a unit returns for one evaluation. The engine
// normalizes every handler flavor to this shape before acting on it.
//
// Allowed=true continues the chain; Allowed=false stops it immediately.
// Redirect and Reason are advisory payload for the caller: on an allowed
// result a redirect is informational and does not stop the chain.
type Result struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Allow returns the plain allow-and-continue verdict, the equivalent of a
// bare boolean true from a handler.
func Allow() Result {
	return Result{Allowed: true}
}

// Deny returns the plain deny verdict with no redirect or reason, the
// equivalent of a bare boolean false.
func Deny() Result {
	return Result{Allowed: false}
}

// DenyWith returns a deny verdict carrying a redirect target and a reason.
// Either may be empty.
func DenyWith(redirect, reason string) Result {
	return Result{Allowed: false, Redirect: redirect, Reason: reason}
}

// AllowWith returns an allow verdict carrying informational redirect and
// reason fields. The chain still continues.
func AllowWith(redirect, reason string) Result {
	return Result{Allowed: true, Redirect: redirect, Reason: reason}
}

// FromBool maps a bare boolean verdict onto a Result.
func FromBool(allowed bool) Result {
	return Result{Allowed: allowed}
}

// Outcome is the settlement of a deferred handler: exactly one of Result
// or Err is meaningful. A non-nil Err is a unit fault, not a deny.
type Outcome struct {
	Result Result
	Err    error
}
