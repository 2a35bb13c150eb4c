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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/marketbase/marketbase/internal/directory"
)

// ProfileRepository implements directory.ProfileRepository
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create creates a new profile
func (r *ProfileRepository) Create(ctx context.Context, profile *directory.UserProfile) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO profiles (id, tenant_id, email, display_name, role, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		profile.ID, profile.TenantID, profile.Email, profile.DisplayName,
		string(profile.Role), profile.Permissions, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by user ID
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*directory.UserProfile, error) {
	var profile directory.UserProfile
	var role string

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, tenant_id, email, display_name, role, permissions, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, id).Scan(
		&profile.ID, &profile.TenantID, &profile.Email, &profile.DisplayName,
		&role, &profile.Permissions, &profile.CreatedAt, &profile.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, directory.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.Role = directory.Role(role)
	return &profile, nil
}

// Update updates a profile
func (r *ProfileRepository) Update(ctx context.Context, profile *directory.UserProfile) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE profiles SET
			email = $2,
			display_name = $3,
			role = $4,
			permissions = $5,
			updated_at = NOW()
		WHERE id = $1
	`,
		profile.ID, profile.Email, profile.DisplayName,
		string(profile.Role), profile.Permissions,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrProfileNotFound
	}
	return nil
}

// ListByTenant lists profiles in a tenant with pagination
func (r *ProfileRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*directory.UserProfile, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, tenant_id, email, display_name, role, permissions, created_at, updated_at
		FROM profiles
		WHERE tenant_id = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*directory.UserProfile
	for rows.Next() {
		var profile directory.UserProfile
		var role string
		if err := rows.Scan(
			&profile.ID, &profile.TenantID, &profile.Email, &profile.DisplayName,
			&role, &profile.Permissions, &profile.CreatedAt, &profile.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profile.Role = directory.Role(role)
		profiles = append(profiles, &profile)
	}

	return profiles, rows.Err()
}

// Delete deletes a profile
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM profiles WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrProfileNotFound
	}
	return nil
}
