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

package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/marketbase/marketbase/internal/audit"
	"github.com/marketbase/marketbase/internal/id"
)

// Service provides tenant and profile management business logic. It is
// also the server-side Reader behind the dashboard's resolution
// endpoints.
type Service struct {
	tenants     TenantRepository
	profiles    ProfileRepository
	auditLogger audit.Logger
}

// NewService creates a new directory service
func NewService(tenants TenantRepository, profiles ProfileRepository, auditLogger audit.Logger) *Service {
	return &Service{
		tenants:     tenants,
		profiles:    profiles,
		auditLogger: auditLogger,
	}
}

// CreateTenant creates a new tenant
func (s *Service) CreateTenant(ctx context.Context, name string, branding, settings map[string]any) (*Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}

	if _, err := s.tenants.GetByName(ctx, name); err == nil {
		return nil, fmt.Errorf("tenant with name %q already exists", name)
	}

	now := time.Now()
	tenant := &Tenant{
		ID:        id.NewUUIDv7(),
		Name:      name,
		Status:    StatusActive,
		Branding:  branding,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: tenant.ID,
		Resource: tenant.Name,
	})

	return tenant, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.tenants.GetByID(ctx, tenantID)
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.tenants.List(ctx, limit, offset)
}

// ProvisionProfile creates the directory profile binding a user to a
// tenant with a role. A user holds at most one profile.
func (s *Service) ProvisionProfile(ctx context.Context, userID, tenantID, email, displayName string, role Role) (*UserProfile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, ErrTenantNotFound
	}
	if existing, err := s.profiles.GetByID(ctx, userID); err == nil && existing != nil {
		return nil, fmt.Errorf("profile for user %s already exists", userID)
	}

	now := time.Now()
	profile := &UserProfile{
		ID:          userID,
		TenantID:    tenantID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeProfileProvisioned,
		TenantID: tenantID,
		ActorID:  userID,
		Metadata: map[string]any{
			audit.AttrEmail: email,
			audit.AttrRole:  string(role),
		},
	})

	return profile, nil
}

// GetProfile implements Reader against local storage.
func (s *Service) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	return s.profiles.GetByID(ctx, userID)
}

// ChangeRole moves the profile to a different role within its tenant.
func (s *Service) ChangeRole(ctx context.Context, userID string, role Role) (*UserProfile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile.Role = role
	profile.UpdatedAt = time.Now()
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

// ListProfiles lists the profiles of a tenant with pagination.
func (s *Service) ListProfiles(ctx context.Context, tenantID string, limit, offset int) ([]*UserProfile, error) {
	return s.profiles.ListByTenant(ctx, tenantID, limit, offset)
}
