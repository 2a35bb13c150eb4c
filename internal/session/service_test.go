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
	"testing"
	"time"

	"github.com/marketbase/marketbase/internal/audit"
)

type mockRepository struct {
	sessions map[string]*Session
}

func newMockRepository() *mockRepository {
	return &mockRepository{sessions: make(map[string]*Session)}
}

func (m *mockRepository) Create(sess *Session) error {
	m.sessions[sess.ID] = sess
	return nil
}

func (m *mockRepository) Get(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *mockRepository) GetByTokenHash(hash string) (*Session, error) {
	for _, s := range m.sessions {
		if s.RefreshTokenHash == hash {
			return s, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *mockRepository) Update(sess *Session) error {
	m.sessions[sess.ID] = sess
	return nil
}

func (m *mockRepository) Delete(id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *mockRepository) DeleteByUserID(userID string) error {
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *mockRepository) DeleteExpired() (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.IsExpired() || s.IsRevoked() {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func TestSession_RefreshRotatesToken(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, audit.NewSlogLogger(), time.Hour)
	ctx := context.Background()

	sess, raw, err := s.Create(ctx, "u1", "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if raw == "" {
		t.Fatal("expected a raw refresh token")
	}
	if raw == sess.RefreshTokenHash {
		t.Fatal("raw token must not equal the stored hash")
	}

	rotated, newRaw, err := s.Refresh(ctx, raw)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if newRaw == raw {
		t.Error("refresh must rotate the token")
	}
	if rotated.ID != sess.ID {
		t.Errorf("refresh should keep the session, got %s want %s", rotated.ID, sess.ID)
	}

	// The old token must be dead after rotation.
	if _, _, err := s.Refresh(ctx, raw); err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound for rotated-out token, got %v", err)
	}
}

func TestSession_RefreshExpired(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, audit.NewSlogLogger(), -time.Minute)
	ctx := context.Background()

	_, raw, err := s.Create(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, _, err := s.Refresh(ctx, raw); err != ErrSessionExpired {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSession_RevokeIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, audit.NewSlogLogger(), time.Hour)
	ctx := context.Background()

	_, raw, err := s.Create(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := s.Revoke(ctx, raw); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if err := s.Revoke(ctx, raw); err != nil {
		t.Errorf("second revoke should be a no-op, got %v", err)
	}
	if err := s.Revoke(ctx, "never-issued"); err != nil {
		t.Errorf("revoking an unknown token should be a no-op, got %v", err)
	}

	if _, _, err := s.Refresh(ctx, raw); err != ErrSessionRevoked {
		t.Errorf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestSession_CleanupExpired(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, audit.NewSlogLogger(), time.Hour)
	ctx := context.Background()

	_, live, _ := s.Create(ctx, "u1", "", "")
	_, gone, _ := s.Create(ctx, "u2", "", "")
	_ = s.Revoke(ctx, gone)

	n, err := s.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted session, got %d", n)
	}
	if _, _, err := s.Refresh(ctx, live); err != nil {
		t.Errorf("live session should survive cleanup: %v", err)
	}
}
