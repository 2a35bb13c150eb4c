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

// Package provider abstracts the hosted identity provider: credential
// verification, session issuance and the session-change event stream.
// Session bootstrap consumes this interface only; it never talks to the
// auth endpoints directly.
package provider

import (
	"context"
	"errors"
	"time"
)

// Domain errors
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotSignedIn        = errors.New("no active session")
)

// EventType identifies a session-change event.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Session is an authenticated provider credential. Opaque to consumers
// beyond the user id; tokens are carried for API calls only.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Event is a session-change notification. Session is nil for sign-out.
type Event struct {
	Type    EventType
	Session *Session
}

// SignUpResult reports the outcome of account creation.
// ConfirmationPending is set when the account was created but no session
// was issued (email confirmation required); this is informational, not an
// error.
type SignUpResult struct {
	UserID              string
	ConfirmationPending bool
}

// Client is the identity-provider SDK surface consumed by session
// bootstrap.
type Client interface {
	// GetSession returns the current session, or (nil, nil) when signed out.
	GetSession(ctx context.Context) (*Session, error)

	// Events returns the session-change event stream. The channel is
	// closed when the client is closed.
	Events() <-chan Event

	// SignInWithPassword verifies credentials. On success the resulting
	// SIGNED_IN event drives session bootstrap; the call itself does not
	// wait for profile resolution.
	SignInWithPassword(ctx context.Context, email, password string) error

	// SignUp creates an account. A nil error with ConfirmationPending set
	// means the account exists but no session was issued yet.
	SignUp(ctx context.Context, email, password, displayName string) (*SignUpResult, error)

	// SignOut revokes the current session.
	SignOut(ctx context.Context) error

	// Close releases the event stream and any background refresh work.
	Close() error
}
