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

package extension

import (
	"log/slog"

	"github.com/wso2/api-platform/gateway/guard-engine/guard"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/metrics"
)

// VerifyLicenseAsync fires the license verifier on its own goroutine and
// logs the outcome. It never blocks startup and never gates execution;
// a nil verifier or empty key is simply skipped.
func VerifyLicenseAsync(key string, verifier guard.LicenseVerifier) {
	if verifier == nil || key == "" {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.PanicRecoveriesTotal.WithLabelValues("license_verifier").Inc()
				slog.Warn("License verifier panicked", "panic", r)
			}
		}()
		status := verifier(key)
		switch {
		case status.Err != nil:
			slog.Warn("License verification failed", "error", status.Err)
		case !status.Valid:
			slog.Warn("License key is not valid", "metadata", status.Metadata)
		default:
			slog.Info("License verified", "metadata", status.Metadata)
		}
	}()
}
