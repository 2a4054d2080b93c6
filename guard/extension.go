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

// Plugin is an engine extension. Register is called once at startup with a
// RegistrationContext; an error aborts startup.
type Plugin interface {
	Name() string
	Register(rc RegistrationContext) error
}

// RegistrationContext is what the engine hands a plugin at registration
// time. Pre and post middleware are merged around every user chain as
// pre ++ user ++ post, in registration order within each segment.
type RegistrationContext interface {
	// RegisterPreMiddleware appends nodes that run before every chain.
	RegisterPreMiddleware(nodes ...Node)
	// RegisterPostMiddleware appends nodes that run after every chain.
	RegisterPostMiddleware(nodes ...Node)
	// RegisterMiddleware publishes a named pipeline for Ref resolution.
	// Duplicate names are an error.
	RegisterMiddleware(p *Pipeline) error
	// Setting exposes a read-only view of engine configuration.
	Setting(key string) (any, bool)
}

// Sink receives finalized chain records, asynchronously fanned out by the
// audit dispatcher. A Sink must tolerate concurrent calls only if it is
// shared between dispatchers; a single dispatcher serializes emission.
type Sink interface {
	Emit(ctx context.Context, rec *ChainRecord) error
}

// LicenseStatus is the outcome of an optional license verification. It is
// informational: the engine logs it and never gates execution on it.
type LicenseStatus struct {
	Valid    bool
	Metadata map[string]any
	Err      error
}

// LicenseVerifier validates a license key. It is invoked asynchronously at
// startup and must not be relied on to block or deny anything.
type LicenseVerifier func(key string) LicenseStatus
