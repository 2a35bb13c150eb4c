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

// Package bootstrap resolves an identity-provider session into an
// application identity: the user's profile and the tenant (workspace)
// that scopes it. It owns a small state machine
// (idle -> loading -> ready | error | anonymous) driven by provider
// session-change events, and is the only place in the codebase with a
// retry and timeout policy of its own.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marketbase/marketbase/internal/audit"
	"github.com/marketbase/marketbase/internal/directory"
	"github.com/marketbase/marketbase/internal/observability/logger"
	"github.com/marketbase/marketbase/internal/provider"
)

// User-displayable failure messages. Every terminal error state carries
// one; the UI pairs them with reload and return-to-login actions.
const (
	msgProfileFailed = "We couldn't load your profile. Try reloading, or sign in again."
	msgInvalidRole   = "Your account role isn't recognized. Contact your workspace admin."
	msgTenantFailed  = "We couldn't load your workspace. Try reloading, or sign in again."
	msgTimeout       = "Signing you in took too long. Try reloading, or sign in again."
)

// Config holds the bootstrap timing policy.
type Config struct {
	// FetchTimeout caps a single profile or tenant fetch attempt.
	FetchTimeout time.Duration
	// MaxFetchAttempts is the retry cap per fetch. Profile and tenant
	// each get their own budget; it is not shared.
	MaxFetchAttempts int
	// RetryBaseDelay is the unit of the linear backoff between attempts.
	RetryBaseDelay time.Duration
	// OverallTimeout is the wall-clock ceiling over the whole sequence,
	// retries included.
	OverallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.MaxFetchAttempts <= 0 {
		c.MaxFetchAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.OverallTimeout <= 0 {
		c.OverallTimeout = 30 * time.Second
	}
	return c
}

// Bootstrapper owns the BootstrapState. Its lifecycle is explicit: the
// application entry point constructs it, calls Run, and cancels Run's
// context on teardown. All other consumers read snapshots or subscribe.
type Bootstrapper struct {
	provider provider.Client
	dir      directory.Reader
	audit    audit.Logger
	cfg      Config
	metrics  *metrics

	mu     sync.RWMutex
	state  State
	gen    uint64
	subs   map[int]chan State
	subSeq int

	wg sync.WaitGroup
}

// New creates a Bootstrapper in the idle state. Zero-value Config fields
// fall back to the documented defaults.
func New(p provider.Client, dir directory.Reader, auditLogger audit.Logger, cfg Config) *Bootstrapper {
	return &Bootstrapper{
		provider: p,
		dir:      dir,
		audit:    auditLogger,
		cfg:      cfg.withDefaults(),
		state:    State{Status: StatusIdle},
		subs:     make(map[int]chan State),
	}
}

// Run performs the initial session check, then processes session-change
// events in arrival order until ctx is cancelled or the provider's event
// stream closes. It blocks; owners run it in a goroutine.
func (b *Bootstrapper) Run(ctx context.Context) {
	defer b.wg.Wait()

	sess, err := b.provider.GetSession(ctx)
	if err != nil {
		slog.WarnContext(ctx, "initial session check failed", logger.Error(err))
	}
	if sess != nil {
		b.begin(ctx, sess)
	} else {
		b.setAnonymous()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.provider.Events():
			if !ok {
				return
			}
			b.handleEvent(ctx, ev)
		}
	}
}

// State returns the current snapshot.
func (b *Bootstrapper) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Subscribe registers a state-change channel. Subscribers that fall
// behind miss intermediate snapshots, never the final one for a
// transition burst. The returned func unsubscribes.
func (b *Bootstrapper) Subscribe() (<-chan State, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.subSeq
	b.subSeq++
	ch := make(chan State, 8)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// SignIn delegates credential verification to the provider. On success
// the resulting SIGNED_IN event drives the bootstrap sequence
// asynchronously. A failure is returned to the caller and never recorded
// on bootstrap state: "login failed" and "bootstrap failed" are
// different channels.
func (b *Bootstrapper) SignIn(ctx context.Context, email, password string) error {
	return b.provider.SignInWithPassword(ctx, email, password)
}

// SignUp delegates account creation. A result with ConfirmationPending
// set is informational, not an error.
func (b *Bootstrapper) SignUp(ctx context.Context, email, password, displayName string) (*provider.SignUpResult, error) {
	return b.provider.SignUp(ctx, email, password, displayName)
}

// SignOut revokes the provider session. On success the held identity is
// cleared synchronously and the state lands on anonymous. On failure the
// held state is left untouched so the UI is not half signed out.
func (b *Bootstrapper) SignOut(ctx context.Context) error {
	if err := b.provider.SignOut(ctx); err != nil {
		return err
	}
	b.setAnonymous()
	return nil
}

// ClearError drops a held error. From the error state this re-enters
// idle (or anonymous when no session is held); recovery then requires an
// explicit user action such as re-login.
func (b *Bootstrapper) ClearError() {
	b.mu.Lock()
	if b.state.Err == nil {
		b.mu.Unlock()
		return
	}
	b.state.Err = nil
	if b.state.Status == StatusError {
		if b.state.User != nil {
			b.state.Status = StatusIdle
		} else {
			b.state.Status = StatusAnonymous
		}
	}
	b.mu.Unlock()
	b.publish()
}

func (b *Bootstrapper) handleEvent(ctx context.Context, ev provider.Event) {
	if ev.Type == provider.EventTokenRefreshed {
		// A refreshed token for an already-resolved identity must not
		// trigger a refetch; only the held session is swapped.
		b.mu.Lock()
		if b.state.Profile != nil && ev.Session != nil && b.state.User != nil && b.state.User.UserID == ev.Session.UserID {
			b.state.User = ev.Session
		}
		b.mu.Unlock()
		return
	}

	if ev.Session == nil || ev.Type == provider.EventSignedOut {
		b.setAnonymous()
		return
	}

	b.mu.RLock()
	sameUser := b.state.User != nil && b.state.User.UserID == ev.Session.UserID
	ready := b.state.Status == StatusReady
	b.mu.RUnlock()

	if sameUser && ready {
		// Same identity already resolved; keep the fresher session.
		b.mu.Lock()
		b.state.User = ev.Session
		b.mu.Unlock()
		return
	}

	b.begin(ctx, ev.Session)
}

// begin starts a bootstrap for the given session. Each run is stamped
// with a generation so a stale run that loses the race to a newer
// session (or a sign-out) has its result discarded instead of clobbering
// current state.
func (b *Bootstrapper) begin(ctx context.Context, sess *provider.Session) {
	b.mu.Lock()
	b.gen++
	g := b.gen
	b.state = State{Status: StatusLoading, User: sess}
	b.mu.Unlock()
	b.publish()

	b.audit.Log(ctx, audit.Event{
		Type:     audit.TypeBootstrapStarted,
		ActorID:  sess.UserID,
		Resource: "session",
	})

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.resolve(ctx, g, sess.UserID)
	}()
}

// resolve runs the fetch sequence: profile, role validation, tenant.
// The two fetches are sequential because the tenant id comes from the
// profile row.
func (b *Bootstrapper) resolve(ctx context.Context, g uint64, userID string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, b.cfg.OverallTimeout)
	defer cancel()

	var profile *directory.UserProfile
	err := b.fetchWithRetry(ctx, "profile", func(c context.Context) error {
		p, err := b.dir.GetProfile(c, userID)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		b.fail(ctx, g, userID, b.classify(ctx, err, ClassProfileFetchFailed, msgProfileFailed), start)
		return
	}

	// An out-of-set role is a data-integrity problem, not a transient
	// fault: fail immediately, no tenant fetch.
	if !profile.Role.Valid() {
		b.fail(ctx, g, userID, &Error{
			Class:   ClassInvalidRole,
			Message: msgInvalidRole,
			Cause:   fmt.Errorf("%w: %q", directory.ErrInvalidRole, profile.Role),
		}, start)
		return
	}

	var tenant *directory.Tenant
	err = b.fetchWithRetry(ctx, "tenant", func(c context.Context) error {
		t, err := b.dir.GetTenant(c, profile.TenantID)
		if err != nil {
			return err
		}
		tenant = t
		return nil
	})
	if err != nil {
		b.fail(ctx, g, userID, b.classify(ctx, err, ClassTenantFetchFailed, msgTenantFailed), start)
		return
	}

	b.finish(ctx, g, userID, profile, tenant, start)
}

// fetchWithRetry runs fetch up to the attempt cap. Each attempt gets its
// own FetchTimeout; the backoff between attempts is linear
// (base*1, base*2, ...), not exponential.
func (b *Bootstrapper) fetchWithRetry(ctx context.Context, what string, fetch func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= b.cfg.MaxFetchAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(time.Duration(attempt-1) * b.cfg.RetryBaseDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			b.metrics.countRetry(ctx, what)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, b.cfg.FetchTimeout)
		err := fetch(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			// The outer ceiling (or teardown) fired mid-attempt; it wins
			// over the per-attempt classification.
			return ctx.Err()
		}
		slog.WarnContext(ctx, "bootstrap fetch attempt failed",
			logger.Operation(what),
			logger.Attempt(attempt),
			logger.Error(err),
		)
	}
	return fmt.Errorf("%s fetch failed after %d attempts: %w", what, b.cfg.MaxFetchAttempts, lastErr)
}

// classify turns a fetch failure into a terminal bootstrap error. A nil
// return means owner teardown: discard with no transition.
func (b *Bootstrapper) classify(ctx context.Context, err error, fallback ErrorClass, msg string) *Error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Class: ClassBootstrapTimeout, Message: msgTimeout, Cause: err}
	default:
		return &Error{Class: fallback, Message: msg, Cause: err}
	}
}

func (b *Bootstrapper) fail(ctx context.Context, g uint64, userID string, e *Error, start time.Time) {
	if e == nil {
		return
	}

	b.mu.Lock()
	if b.gen != g {
		b.mu.Unlock()
		slog.DebugContext(ctx, "discarding superseded bootstrap result", logger.UserID(userID))
		return
	}
	b.state.Status = StatusError
	b.state.Profile = nil
	b.state.Tenant = nil
	b.state.Err = e
	b.mu.Unlock()
	b.publish()

	b.metrics.countOutcome(ctx, "error", string(e.Class), time.Since(start))
	b.audit.Log(ctx, audit.Event{
		Type:     audit.TypeBootstrapFailed,
		ActorID:  userID,
		Resource: "session",
		Metadata: map[string]any{audit.AttrReason: string(e.Class)},
	})
	slog.ErrorContext(ctx, "session bootstrap failed",
		logger.UserID(userID),
		logger.ErrorClass(string(e.Class)),
		logger.Error(e.Cause),
	)
}

func (b *Bootstrapper) finish(ctx context.Context, g uint64, userID string, profile *directory.UserProfile, tenant *directory.Tenant, start time.Time) {
	b.mu.Lock()
	if b.gen != g {
		b.mu.Unlock()
		slog.DebugContext(ctx, "discarding superseded bootstrap result", logger.UserID(userID))
		return
	}
	b.state.Status = StatusReady
	b.state.Profile = profile
	b.state.Tenant = tenant
	b.state.Err = nil
	b.mu.Unlock()
	b.publish()

	b.metrics.countOutcome(ctx, "ready", "", time.Since(start))
	b.audit.Log(ctx, audit.Event{
		Type:     audit.TypeBootstrapReady,
		TenantID: tenant.ID,
		ActorID:  userID,
		Resource: "session",
		Metadata: map[string]any{audit.AttrRole: string(profile.Role)},
	})
	slog.InfoContext(ctx, "session bootstrap ready",
		logger.UserID(userID),
		logger.TenantID(tenant.ID),
	)
}

func (b *Bootstrapper) setAnonymous() {
	b.mu.Lock()
	b.gen++ // supersede any in-flight bootstrap
	already := b.state.Status == StatusAnonymous
	b.state = State{Status: StatusAnonymous}
	b.mu.Unlock()
	if !already {
		b.publish()
	}
}

func (b *Bootstrapper) publish() {
	b.mu.RLock()
	state := b.state
	for _, ch := range b.subs {
		select {
		case ch <- state:
		default:
			// Drain one stale snapshot so the latest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
	b.mu.RUnlock()
}
