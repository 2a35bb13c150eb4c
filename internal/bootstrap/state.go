// Copyright 2026 The Marketbase Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootstrap

import (
	"github.com/marketbase/marketbase/internal/directory"
	"github.com/marketbase/marketbase/internal/provider"
)

// Status is the session bootstrap state.
type Status string

const (
	// StatusIdle is the initial state, before any session check.
	StatusIdle Status = "idle"
	// StatusLoading means a session is present and the profile/tenant
	// fetch sequence is in flight.
	StatusLoading Status = "loading"
	// StatusReady means profile and tenant are resolved.
	StatusReady Status = "ready"
	// StatusError means the fetch sequence permanently failed.
	StatusError Status = "error"
	// StatusAnonymous means no session exists; terminal until a new
	// session arrives.
	StatusAnonymous Status = "anonymous"
)

// ErrorClass classifies a terminal bootstrap failure so callers can pick
// a recovery action (refresh vs return to login).
type ErrorClass string

const (
	ClassProfileFetchFailed ErrorClass = "profile_fetch_failed"
	ClassInvalidRole        ErrorClass = "invalid_role"
	ClassTenantFetchFailed  ErrorClass = "tenant_fetch_failed"
	ClassBootstrapTimeout   ErrorClass = "bootstrap_timeout"
)

// Error is a terminal bootstrap failure: a user-displayable message plus
// an internal classification and cause.
type Error struct {
	Class   ErrorClass
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// State is the read-only snapshot exposed to route guards and pages.
// User is present iff a session exists; Profile and Tenant are present
// iff Status is ready; Err is present iff Status is error.
type State struct {
	Status  Status
	User    *provider.Session
	Profile *directory.UserProfile
	Tenant  *directory.Tenant
	Err     *Error
}
