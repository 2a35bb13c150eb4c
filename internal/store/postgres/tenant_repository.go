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

// TenantRepository implements directory.TenantRepository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create creates a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenant *directory.Tenant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, status, branding, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		tenant.ID, tenant.Name, tenant.Status, tenant.Branding, tenant.Settings,
		tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*directory.Tenant, error) {
	return r.getBy(ctx, `WHERE id = $1`, id)
}

// GetByName retrieves a tenant by name
func (r *TenantRepository) GetByName(ctx context.Context, name string) (*directory.Tenant, error) {
	return r.getBy(ctx, `WHERE name = $1`, name)
}

func (r *TenantRepository) getBy(ctx context.Context, where string, arg any) (*directory.Tenant, error) {
	var tenant directory.Tenant

	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, status, branding, settings, created_at, updated_at
		FROM tenants
	`+where, arg).Scan(
		&tenant.ID, &tenant.Name, &tenant.Status, &tenant.Branding, &tenant.Settings,
		&tenant.CreatedAt, &tenant.UpdatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, directory.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &tenant, nil
}

// Update updates a tenant
func (r *TenantRepository) Update(ctx context.Context, tenant *directory.Tenant) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET
			name = $2,
			status = $3,
			branding = $4,
			settings = $5,
			updated_at = NOW()
		WHERE id = $1
	`, tenant.ID, tenant.Name, tenant.Status, tenant.Branding, tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrTenantNotFound
	}
	return nil
}

// Delete deletes a tenant
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.pool.Exec(ctx, `
		DELETE FROM tenants WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return directory.ErrTenantNotFound
	}
	return nil
}

// List lists tenants with pagination
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*directory.Tenant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, name, status, branding, settings, created_at, updated_at
		FROM tenants
		ORDER BY created_at
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*directory.Tenant
	for rows.Next() {
		var tenant directory.Tenant
		if err := rows.Scan(
			&tenant.ID, &tenant.Name, &tenant.Status, &tenant.Branding, &tenant.Settings,
			&tenant.CreatedAt, &tenant.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &tenant)
	}

	return tenants, rows.Err()
}
