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
	"fmt"
	"os"

	"github.com/marketbase/marketbase/internal/audit"
	"github.com/marketbase/marketbase/internal/directory"
	"github.com/marketbase/marketbase/internal/id"
)

const (
	EnvSeedAdminEmail    = "MB_SEED_ADMIN_EMAIL"
	EnvSeedAdminPassword = "MB_SEED_ADMIN_PASSWORD"
	EnvSeedTenantName    = "MB_SEED_TENANT_NAME"
)

// SeedService provisions the first tenant and its admin account on a
// fresh deployment.
type SeedService struct {
	identityService *Service
	profiles        directory.ProfileRepository
	tenants         directory.TenantRepository
	auditLogger     audit.Logger
}

// NewSeedService creates a new seed service
func NewSeedService(
	identityService *Service,
	profiles directory.ProfileRepository,
	tenants directory.TenantRepository,
	auditLogger audit.Logger,
) *SeedService {
	return &SeedService{
		identityService: identityService,
		profiles:        profiles,
		tenants:         tenants,
		auditLogger:     auditLogger,
	}
}

// Seed provisions the initial tenant and admin if the environment asks
// for it and the account does not exist yet. It is safe to call on
// every startup.
func (s *SeedService) Seed(ctx context.Context) error {
	email := os.Getenv(EnvSeedAdminEmail)
	if email == "" {
		return nil
	}
	password := os.Getenv(EnvSeedAdminPassword)
	if password == "" {
		return fmt.Errorf("%s is set but %s is empty", EnvSeedAdminEmail, EnvSeedAdminPassword)
	}

	if existing, err := s.identityService.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil
	}

	tenantName := os.Getenv(EnvSeedTenantName)
	if tenantName == "" {
		tenantName = "Default Tenant"
	}

	tenant := &directory.Tenant{
		ID:     id.NewUUIDv7(),
		Name:   tenantName,
		Status: directory.StatusActive,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return fmt.Errorf("failed to create seed tenant: %w", err)
	}

	user, err := s.identityService.Register(ctx, email, password, "Administrator")
	if err != nil {
		return fmt.Errorf("failed to create seed admin: %w", err)
	}
	if err := s.identityService.ConfirmEmail(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to verify seed admin: %w", err)
	}

	profile := &directory.UserProfile{
		ID:          user.ID,
		TenantID:    tenant.ID,
		Email:       email,
		DisplayName: user.DisplayName,
		Role:        directory.RoleTenantAdmin,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return fmt.Errorf("failed to create seed profile: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		ActorID:  audit.ActorSystem,
		TenantID: tenant.ID,
		Resource: tenant.Name,
	})
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeProfileProvisioned,
		ActorID:  user.ID,
		TenantID: tenant.ID,
		Metadata: map[string]any{
			audit.AttrEmail: email,
			audit.AttrRole:  string(directory.RoleTenantAdmin),
		},
	})

	return nil
}
