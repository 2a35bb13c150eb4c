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

package identity

import (
	"context"
	"testing"
	"time"

	"github.com/marketbase/marketbase/internal/audit"
)

// MockUserRepository is a simple in-memory implementation of UserRepository
type MockUserRepository struct {
	users       map[string]*User
	credentials map[string]*Credentials
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:       make(map[string]*User),
		credentials: make(map[string]*Credentials),
	}
}

func (m *MockUserRepository) Create(user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) AddCredentials(credentials *Credentials) error {
	m.credentials[credentials.UserID] = credentials
	return nil
}

func (m *MockUserRepository) GetByID(id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MockUserRepository) GetByEmail(email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) Update(user *User) error {
	m.users[user.ID] = user
	return nil
}

func (m *MockUserRepository) UpdateLockout(userID string, failedAttempts int, lockedUntil *time.Time) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.FailedLoginAttempts = failedAttempts
	u.LockedUntil = lockedUntil
	return nil
}

func (m *MockUserRepository) MarkEmailVerified(userID string) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.EmailVerified = true
	return nil
}

func (m *MockUserRepository) Delete(id string) error {
	delete(m.users, id)
	return nil
}

func (m *MockUserRepository) GetCredentials(userID string) (*Credentials, error) {
	c, ok := m.credentials[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return c, nil
}

func (m *MockUserRepository) UpdatePassword(userID string, passwordHash string) error {
	c, ok := m.credentials[userID]
	if !ok {
		return ErrUserNotFound
	}
	c.PasswordHash = passwordHash
	return nil
}

// TestPurpose: Validates the user authentication flow, including success, failure, and account lockout after multiple failed attempts.
// Scope: Unit Test
// Security: Authentication mechanisms and Brute-force protection (lockout)
// Expected: Successful login for correct credentials, error for wrong credentials, and account lockout after context threshold.
// Test Case ID: IDN-01
func TestIdentity_Service_Authenticate(t *testing.T) {
	repo := NewMockUserRepository()
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)
	auditLogger := audit.NewSlogLogger()
	s := NewService(repo, hasher, auditLogger, 3, 5*time.Minute)

	ctx := context.Background()
	email := "test@example.com"
	password := "SecurePassword123"

	// 1. Register account
	user, err := s.Register(ctx, email, password, "Test User")
	if err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	// 2. Success authentication
	authSet, err := s.Authenticate(ctx, email, password)
	if err != nil {
		t.Fatalf("expected success, got err: %v", err)
	}
	if authSet.ID != user.ID {
		t.Errorf("expected user ID %s, got %s", user.ID, authSet.ID)
	}

	// 3. Failed authentication (wrong password)
	_, err = s.Authenticate(ctx, email, "WrongPassword")
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}

	// 4. Account lockout
	s.Authenticate(ctx, email, "WrongPassword")          // Total failed: 2
	_, err = s.Authenticate(ctx, email, "WrongPassword") // Total failed: 3 (Threshold met)
	if err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials for 3rd failed attempt, got %v", err)
	}

	// 5th attempt should be locked out even with the right password
	_, err = s.Authenticate(ctx, email, password)
	if err != ErrAccountLocked {
		t.Errorf("expected ErrAccountLocked, got %v", err)
	}
}

// TestPurpose: Validates that registration fails if an account with the same email already exists.
// Scope: Unit Test
// Security: Data Integrity and Unique Constraint Enforcement
// Expected: ErrUserAlreadyExists when email is already registered.
// Test Case ID: IDN-02
func TestIdentity_Service_Register_Conflict(t *testing.T) {
	repo := NewMockUserRepository()
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)
	s := NewService(repo, hasher, audit.NewSlogLogger(), 3, 5*time.Minute)

	ctx := context.Background()
	email := "conflict@example.com"

	if _, err := s.Register(ctx, email, "SecurePassword123", ""); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	_, err := s.Register(ctx, email, "SecurePassword123", "")
	if err != ErrUserAlreadyExists {
		t.Errorf("expected ErrUserAlreadyExists, got %v", err)
	}
}

// TestPurpose: Validates registration input checks for email shape and password strength.
// Scope: Unit Test
// Expected: ErrInvalidEmail and ErrWeakPassword for malformed input.
// Test Case ID: IDN-03
func TestIdentity_Service_Register_Validation(t *testing.T) {
	repo := NewMockUserRepository()
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)
	s := NewService(repo, hasher, audit.NewSlogLogger(), 3, 5*time.Minute)

	ctx := context.Background()

	if _, err := s.Register(ctx, "not-an-email", "SecurePassword123", ""); err != ErrInvalidEmail {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := s.Register(ctx, "a@b.c", "short", ""); err != ErrWeakPassword {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
}

// TestPurpose: Validates password change requires the current password and updates the stored hash.
// Scope: Unit Test
// Test Case ID: IDN-04
func TestIdentity_Service_ChangePassword(t *testing.T) {
	repo := NewMockUserRepository()
	hasher := NewPasswordHasher(65536, 3, 4, 16, 32)
	s := NewService(repo, hasher, audit.NewSlogLogger(), 3, 5*time.Minute)

	ctx := context.Background()
	user, err := s.Register(ctx, "pw@example.com", "OldPassword123", "")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := s.ChangePassword(ctx, user.ID, "WrongOld", "NewPassword123"); err != ErrInvalidCredentials {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := s.ChangePassword(ctx, user.ID, "OldPassword123", "NewPassword123"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if _, err := s.Authenticate(ctx, "pw@example.com", "NewPassword123"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}
