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

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marketbase/marketbase/internal/observability/logger"
)

// refreshMargin controls how long before token expiry a refresh is
// scheduled.
const refreshMargin = 30 * time.Second

// API is an HTTP Client implementation against the marketbase auth
// endpoints (/auth/v1/token, /auth/v1/signup, /auth/v1/logout).
type API struct {
	baseURL string
	http    *http.Client

	mu      sync.RWMutex
	session *Session
	events  chan Event
	refresh *time.Timer
	closed  bool
}

// NewAPI creates an auth API client. The event channel is buffered;
// consumers that fall behind lose intermediate events, never the latest
// session state.
func NewAPI(baseURL string) *API {
	return &API{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		events:  make(chan Event, 16),
	}
}

// tokenResponse is the wire shape of the token and signup endpoints.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type apiError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
}

func (e *apiError) message() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Error
}

// GetSession returns the current session, or (nil, nil) when signed out.
func (a *API) GetSession(ctx context.Context) (*Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil, nil
	}
	s := *a.session
	return &s, nil
}

// Events returns the session-change event stream.
func (a *API) Events() <-chan Event {
	return a.events
}

// AccessToken returns the current access token, or "" when signed out.
// Used as the bearer source for directory API calls.
func (a *API) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return ""
	}
	return a.session.AccessToken
}

// SignInWithPassword performs the password grant and emits SIGNED_IN on
// success.
func (a *API) SignInWithPassword(ctx context.Context, email, password string) error {
	var resp tokenResponse
	err := a.post(ctx, "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, "", &resp)
	if err != nil {
		return err
	}

	sess := a.sessionFromToken(&resp)
	a.setSession(sess, EventSignedIn)
	return nil
}

// SignUp creates an account. When the server withholds a session (email
// confirmation required) the result carries ConfirmationPending and no
// event is emitted.
func (a *API) SignUp(ctx context.Context, email, password, displayName string) (*SignUpResult, error) {
	var resp struct {
		User *struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
		Session *tokenResponse `json:"session"`
	}
	err := a.post(ctx, "/auth/v1/signup", map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}, "", &resp)
	if err != nil {
		return nil, err
	}

	result := &SignUpResult{}
	if resp.User != nil {
		result.UserID = resp.User.ID
	}
	if resp.Session == nil || resp.Session.AccessToken == "" {
		result.ConfirmationPending = true
		return result, nil
	}

	sess := a.sessionFromToken(resp.Session)
	if result.UserID == "" {
		result.UserID = sess.UserID
	}
	a.setSession(sess, EventSignedIn)
	return result, nil
}

// SignOut revokes the session server-side, then clears local state and
// emits SIGNED_OUT. On server failure the local session is kept so the
// caller is not left half signed out.
func (a *API) SignOut(ctx context.Context) error {
	a.mu.RLock()
	sess := a.session
	a.mu.RUnlock()
	if sess == nil {
		return nil
	}

	if err := a.post(ctx, "/auth/v1/logout", nil, sess.AccessToken, nil); err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}

	a.setSession(nil, EventSignedOut)
	return nil
}

// Close stops the refresh timer and closes the event stream.
func (a *API) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.refresh != nil {
		a.refresh.Stop()
	}
	close(a.events)
	return nil
}

// sessionFromToken builds a Session from a token response, falling back
// to the JWT subject claim when the user object is absent.
func (a *API) sessionFromToken(resp *tokenResponse) *Session {
	sess := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if resp.User != nil {
		sess.UserID = resp.User.ID
		sess.Email = resp.User.Email
	}
	if sess.UserID == "" {
		// The token is verified server-side on every API call; here we
		// only need the subject claim.
		token, _, err := jwt.NewParser().ParseUnverified(resp.AccessToken, jwt.MapClaims{})
		if err == nil {
			if sub, err := token.Claims.GetSubject(); err == nil {
				sess.UserID = sub
			}
		}
	}
	return sess
}

// setSession swaps the session, emits the event and reschedules refresh.
func (a *API) setSession(sess *Session, eventType EventType) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.session = sess
	if a.refresh != nil {
		a.refresh.Stop()
		a.refresh = nil
	}
	if sess != nil {
		delay := time.Until(sess.ExpiresAt) - refreshMargin
		if delay < time.Second {
			delay = time.Second
		}
		a.refresh = time.AfterFunc(delay, a.refreshSession)
	}
	a.mu.Unlock()

	a.emit(Event{Type: eventType, Session: sess})
}

// refreshSession exchanges the refresh token for a new session and emits
// TOKEN_REFRESHED. A refresh failure means the session is gone
// server-side; it degrades to SIGNED_OUT.
func (a *API) refreshSession() {
	a.mu.RLock()
	sess := a.session
	a.mu.RUnlock()
	if sess == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var resp tokenResponse
	err := a.post(ctx, "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": sess.RefreshToken,
	}, "", &resp)
	if err != nil {
		slog.Warn("token refresh failed, signing out", logger.Error(err))
		a.setSession(nil, EventSignedOut)
		return
	}

	next := a.sessionFromToken(&resp)
	if next.UserID == "" {
		next.UserID = sess.UserID
	}
	if next.Email == "" {
		next.Email = sess.Email
	}
	a.setSession(next, EventTokenRefreshed)
}

func (a *API) emit(ev Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	default:
		slog.Warn("provider event dropped, consumer too slow", logger.String("event", string(ev.Type)))
	}
}

func (a *API) post(ctx context.Context, path string, body any, bearer string, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			if msg := apiErr.message(); msg != "" {
				return fmt.Errorf("%s: %w", msg, ErrInvalidCredentials)
			}
			return ErrInvalidCredentials
		}
		return fmt.Errorf("auth request returned status %d: %s", resp.StatusCode, apiErr.message())
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode auth response: %w", err)
		}
	}
	return nil
}
