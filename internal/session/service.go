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

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/marketbase/marketbase/internal/audit"
	"github.com/marketbase/marketbase/internal/id"
	"github.com/marketbase/marketbase/internal/token"
)

// Service manages refresh-token session lifecycle.
type Service struct {
	repo        Repository
	auditLogger audit.Logger
	lifetime    time.Duration
}

// NewService creates a new session service
func NewService(repo Repository, auditLogger audit.Logger, lifetime time.Duration) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
		lifetime:    lifetime,
	}
}

// Create opens a new session for the user and returns it together with
// the raw refresh token. The raw token is shown exactly once.
func (s *Service) Create(ctx context.Context, userID, ipAddress, userAgent string) (*Session, string, error) {
	raw := token.GenerateRefreshToken()
	now := time.Now()

	sess := &Session{
		ID:               id.NewUUIDv7(),
		UserID:           userID,
		RefreshTokenHash: token.HashRefreshToken(raw),
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        now.Add(s.lifetime),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.repo.Create(sess); err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	return sess, raw, nil
}

// Refresh rotates the session's refresh token. The presented raw token
// is invalidated and a new one returned.
func (s *Service) Refresh(ctx context.Context, rawToken string) (*Session, string, error) {
	sess, err := s.repo.GetByTokenHash(token.HashRefreshToken(rawToken))
	if err != nil {
		return nil, "", ErrSessionNotFound
	}
	if sess.IsRevoked() {
		return nil, "", ErrSessionRevoked
	}
	if sess.IsExpired() {
		return nil, "", ErrSessionExpired
	}

	newRaw := token.GenerateRefreshToken()
	sess.RefreshTokenHash = token.HashRefreshToken(newRaw)
	sess.LastSeenAt = time.Now()
	if err := s.repo.Update(sess); err != nil {
		return nil, "", fmt.Errorf("failed to rotate session: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeTokenRefreshed,
		ActorID: sess.UserID,
	})

	return sess, newRaw, nil
}

// Revoke ends the session identified by the raw refresh token. Unknown
// tokens are a no-op so logout stays idempotent.
func (s *Service) Revoke(ctx context.Context, rawToken string) error {
	sess, err := s.repo.GetByTokenHash(token.HashRefreshToken(rawToken))
	if err != nil {
		return nil
	}
	if sess.IsRevoked() {
		return nil
	}

	now := time.Now()
	sess.RevokedAt = &now
	if err := s.repo.Update(sess); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:    audit.TypeLogout,
		ActorID: sess.UserID,
	})
	return nil
}

// RevokeAllForUser ends every session the user holds.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUserID(userID); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// CleanupExpired removes expired and revoked sessions and returns the
// number of rows deleted.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired()
}
