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
	"errors"
	"time"
)

// Domain errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrInvalidRole     = errors.New("invalid role")
)

// Role is a closed-enumeration authorization label attached to a profile.
type Role string

const (
	RoleTenantAdmin     Role = "tenant_admin"
	RoleWorkspaceAdmin  Role = "workspace_admin"
	RoleWorkspaceMember Role = "workspace_member"
)

// Valid reports whether the role is in the closed set. Any other value is
// a data-integrity problem, not a recoverable state.
func (r Role) Valid() bool {
	switch r {
	case RoleTenantAdmin, RoleWorkspaceAdmin, RoleWorkspaceMember:
		return true
	}
	return false
}

// UserProfile is the application-level identity row for a user. Its ID is
// equal to the auth user's ID, and it always references exactly one tenant.
type UserProfile struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	Role        Role           `json:"role"`
	Permissions map[string]any `json:"permissions"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Reader is the read side of the directory as consumed by session
// bootstrap: one profile lookup, one tenant lookup.
type Reader interface {
	// GetProfile retrieves a profile by user ID.
	GetProfile(ctx context.Context, id string) (*UserProfile, error)

	// GetTenant retrieves a tenant by ID.
	GetTenant(ctx context.Context, id string) (*Tenant, error)
}

// ProfileRepository defines the interface for profile persistence.
type ProfileRepository interface {
	// Create creates a new profile
	Create(ctx context.Context, profile *UserProfile) error

	// GetByID retrieves a profile by user ID
	GetByID(ctx context.Context, id string) (*UserProfile, error)

	// Update updates profile information
	Update(ctx context.Context, profile *UserProfile) error

	// ListByTenant lists all profiles in a tenant
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*UserProfile, error)

	// Delete deletes a profile
	Delete(ctx context.Context, id string) error
}
