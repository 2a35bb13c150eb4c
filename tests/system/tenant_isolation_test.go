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

// Package system provides integration tests that run against a real PostgreSQL database.
//
// Test Execution:
//
//	INTEGRATION_TEST=true go test -v ./tests/system/...
//
// Prerequisites:
//
//	docker compose up -d postgres
//
// Test Categories:
//   - TEN-*: Tenant isolation tests
//   - IDN-*: Identity lifecycle tests
//   - SES-*: Session rotation and revocation tests
package system

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketbase/marketbase/internal/audit"
	"github.com/marketbase/marketbase/internal/directory"
	"github.com/marketbase/marketbase/internal/id"
	"github.com/marketbase/marketbase/internal/identity"
	"github.com/marketbase/marketbase/internal/session"
	"github.com/marketbase/marketbase/internal/store/postgres"
)

// testDB is the shared database connection for integration tests
var testDB *postgres.DB

// TestMain sets up and tears down the test database connection
func TestMain(m *testing.M) {
	// Skip if not integration test
	if os.Getenv("INTEGRATION_TEST") != "true" {
		os.Exit(0)
	}

	// Setup database
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         getEnvOrDefault("DB_HOST", "localhost"),
		Port:         getEnvOrDefault("DB_PORT", "5432"),
		User:         getEnvOrDefault("DB_USER", "marketbase"),
		Password:     getEnvOrDefault("DB_PASSWORD", "marketbase_dev_password"),
		Database:     getEnvOrDefault("DB_NAME", "marketbase"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testDB = db

	// Apply migrations
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		// Ignore errors for already existing tables
		_ = err
	}

	// Run tests
	code := m.Run()

	// Cleanup
	testDB.Close()
	os.Exit(code)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newIdentityService() *identity.Service {
	hasher := identity.NewPasswordHasher(8*1024, 1, 1, 16, 32)
	return identity.NewService(postgres.NewUserRepository(testDB), hasher, audit.NewSlogLogger(), 3, time.Minute)
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@system.example.com", prefix, time.Now().UnixNano())
}

// =============================================================================
// TENANT ISOLATION TESTS
// =============================================================================

// TestPurpose: Validates cross-tenant isolation so profiles of Tenant A are never visible through Tenant B.
// Scope: Integration Test
// Security: Multi-tenancy boundary enforcement (prevents cross-tenant access)
// Expected: Tenant B listings and role changes never touch Tenant A profiles.
// Test Case ID: TEN-01
func TestTenant_Isolation_ProfilesDoNotLeakAcrossTenants(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database (set INTEGRATION_TEST=true)")
	}

	ctx := context.Background()
	identityService := newIdentityService()
	directoryService := directory.NewService(
		postgres.NewTenantRepository(testDB),
		postgres.NewProfileRepository(testDB),
		audit.NewSlogLogger(),
	)

	tenantA, err := directoryService.CreateTenant(ctx, "ten01-a-"+id.NewUUIDv7(), nil, nil)
	require.NoError(t, err)
	tenantB, err := directoryService.CreateTenant(ctx, "ten01-b-"+id.NewUUIDv7(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		testDB.Pool().Exec(ctx, "DELETE FROM tenants WHERE id IN ($1, $2)", tenantA.ID, tenantB.ID)
	})

	userA, err := identityService.Register(ctx, uniqueEmail("ten01-a"), "SystemTest123", "User A")
	require.NoError(t, err)
	userB, err := identityService.Register(ctx, uniqueEmail("ten01-b"), "SystemTest123", "User B")
	require.NoError(t, err)
	t.Cleanup(func() {
		testDB.Pool().Exec(ctx, "DELETE FROM users WHERE id IN ($1, $2)", userA.ID, userB.ID)
	})

	_, err = directoryService.ProvisionProfile(ctx, userA.ID, tenantA.ID, userA.Email, "User A", directory.RoleWorkspaceAdmin)
	require.NoError(t, err)
	_, err = directoryService.ProvisionProfile(ctx, userB.ID, tenantB.ID, userB.Email, "User B", directory.RoleWorkspaceMember)
	require.NoError(t, err)

	// Tenant B listings never contain tenant A profiles.
	listed, err := directoryService.ListProfiles(ctx, tenantB.ID, 100, 0)
	require.NoError(t, err)
	for _, p := range listed {
		assert.Equal(t, tenantB.ID, p.TenantID)
		assert.NotEqual(t, userA.ID, p.ID, "tenant A profile leaked into tenant B listing")
	}

	// A profile resolves to exactly one tenant.
	profileA, err := directoryService.GetProfile(ctx, userA.ID)
	require.NoError(t, err)
	assert.Equal(t, tenantA.ID, profileA.TenantID)
}

// =============================================================================
// IDENTITY LIFECYCLE TESTS
// =============================================================================

// TestPurpose: Validates the account lifecycle against real persistence: register, authenticate, lock out.
// Scope: Integration Test
// Security: Credential verification and brute-force lockout (CWE-307)
// Expected: Correct password authenticates; repeated failures lock the account.
// Test Case ID: IDN-10
func TestIdentity_RegisterAuthenticateLockout(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database (set INTEGRATION_TEST=true)")
	}

	ctx := context.Background()
	identityService := newIdentityService()

	email := uniqueEmail("idn10")
	user, err := identityService.Register(ctx, email, "SystemTest123", "Lockout Probe")
	require.NoError(t, err)
	t.Cleanup(func() {
		testDB.Pool().Exec(ctx, "DELETE FROM users WHERE id = $1", user.ID)
	})

	authed, err := identityService.Authenticate(ctx, email, "SystemTest123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	// Three failures hit the configured lockout threshold.
	for i := 0; i < 3; i++ {
		_, err = identityService.Authenticate(ctx, email, "wrong-password")
		require.ErrorIs(t, err, identity.ErrInvalidCredentials)
	}

	_, err = identityService.Authenticate(ctx, email, "SystemTest123")
	assert.ErrorIs(t, err, identity.ErrAccountLocked)
}

// =============================================================================
// SESSION ROTATION TESTS
// =============================================================================

// TestPurpose: Validates refresh token rotation and bulk revocation against real persistence.
// Scope: Integration Test
// Security: Refresh token replay prevention (rotation invalidates the old token)
// Expected: A rotated token works once; pre-rotation and revoked tokens are rejected.
// Test Case ID: SES-10
func TestSession_RotationAndRevocation(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database (set INTEGRATION_TEST=true)")
	}

	ctx := context.Background()
	identityService := newIdentityService()
	sessionService := session.NewService(postgres.NewSessionRepository(testDB), audit.NewSlogLogger(), time.Hour)

	user, err := identityService.Register(ctx, uniqueEmail("ses10"), "SystemTest123", "")
	require.NoError(t, err)
	t.Cleanup(func() {
		testDB.Pool().Exec(ctx, "DELETE FROM users WHERE id = $1", user.ID)
	})

	_, rawToken, err := sessionService.Create(ctx, user.ID, "127.0.0.1", "system-test")
	require.NoError(t, err)

	_, rotated, err := sessionService.Refresh(ctx, rawToken)
	require.NoError(t, err)
	assert.NotEqual(t, rawToken, rotated)

	// The pre-rotation token is dead.
	_, _, err = sessionService.Refresh(ctx, rawToken)
	assert.Error(t, err)

	// Bulk revocation kills the rotated token too.
	require.NoError(t, sessionService.RevokeAllForUser(ctx, user.ID))
	_, _, err = sessionService.Refresh(ctx, rotated)
	assert.Error(t, err)
}
