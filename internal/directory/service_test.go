package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marketbase/marketbase/internal/audit"
)

type mockTenantRepo struct {
	mock.Mock
}

func (m *mockTenantRepo) Create(ctx context.Context, t *Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockTenantRepo) GetByID(ctx context.Context, id string) (*Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockTenantRepo) GetByName(ctx context.Context, name string) (*Tenant, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockTenantRepo) Update(ctx context.Context, t *Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockTenantRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockTenantRepo) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*Tenant), args.Error(1)
}

type mockProfileRepo struct {
	mock.Mock
}

func (m *mockProfileRepo) Create(ctx context.Context, p *UserProfile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockProfileRepo) GetByID(ctx context.Context, id string) (*UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UserProfile), args.Error(1)
}

func (m *mockProfileRepo) Update(ctx context.Context, p *UserProfile) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockProfileRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*UserProfile, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	return args.Get(0).([]*UserProfile), args.Error(1)
}

func (m *mockProfileRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestDirectory_CreateTenant(t *testing.T) {
	tenants := new(mockTenantRepo)
	profiles := new(mockProfileRepo)
	s := NewService(tenants, profiles, audit.NewSlogLogger())

	tenants.On("GetByName", mock.Anything, "Acme").Return(nil, ErrTenantNotFound)
	tenants.On("Create", mock.Anything, mock.AnythingOfType("*directory.Tenant")).Return(nil)

	created, err := s.CreateTenant(context.Background(), "Acme", map[string]any{"logo": "acme.png"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusActive, created.Status)
	assert.Equal(t, "acme.png", created.Branding["logo"])
	tenants.AssertExpectations(t)
}

func TestDirectory_CreateTenant_DuplicateName(t *testing.T) {
	tenants := new(mockTenantRepo)
	profiles := new(mockProfileRepo)
	s := NewService(tenants, profiles, audit.NewSlogLogger())

	tenants.On("GetByName", mock.Anything, "Acme").Return(&Tenant{ID: "t1", Name: "Acme"}, nil)

	_, err := s.CreateTenant(context.Background(), "Acme", nil, nil)
	assert.Error(t, err)
	tenants.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDirectory_ProvisionProfile(t *testing.T) {
	tenants := new(mockTenantRepo)
	profiles := new(mockProfileRepo)
	s := NewService(tenants, profiles, audit.NewSlogLogger())

	tenants.On("GetByID", mock.Anything, "t1").Return(&Tenant{ID: "t1"}, nil)
	profiles.On("GetByID", mock.Anything, "u1").Return(nil, ErrProfileNotFound)
	profiles.On("Create", mock.Anything, mock.AnythingOfType("*directory.UserProfile")).Return(nil)

	p, err := s.ProvisionProfile(context.Background(), "u1", "t1", "ada@example.com", "Ada", RoleWorkspaceMember)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "t1", p.TenantID)
	assert.Equal(t, RoleWorkspaceMember, p.Role)
	profiles.AssertExpectations(t)
}

func TestDirectory_ProvisionProfile_InvalidRole(t *testing.T) {
	tenants := new(mockTenantRepo)
	profiles := new(mockProfileRepo)
	s := NewService(tenants, profiles, audit.NewSlogLogger())

	_, err := s.ProvisionProfile(context.Background(), "u1", "t1", "a@b.c", "", Role("superuser"))
	assert.ErrorIs(t, err, ErrInvalidRole)
	tenants.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestDirectory_ChangeRole(t *testing.T) {
	tenants := new(mockTenantRepo)
	profiles := new(mockProfileRepo)
	s := NewService(tenants, profiles, audit.NewSlogLogger())

	profiles.On("GetByID", mock.Anything, "u1").Return(&UserProfile{ID: "u1", TenantID: "t1", Role: RoleWorkspaceMember}, nil)
	profiles.On("Update", mock.Anything, mock.AnythingOfType("*directory.UserProfile")).Return(nil)

	p, err := s.ChangeRole(context.Background(), "u1", RoleWorkspaceAdmin)
	require.NoError(t, err)
	assert.Equal(t, RoleWorkspaceAdmin, p.Role)

	_, err = s.ChangeRole(context.Background(), "u1", Role("owner"))
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleTenantAdmin.Valid())
	assert.True(t, RoleWorkspaceAdmin.Valid())
	assert.True(t, RoleWorkspaceMember.Valid())
	assert.False(t, Role("superuser").Valid())
	assert.False(t, Role("").Valid())
	assert.False(t, Role("TENANT_ADMIN").Valid(), "role names are case sensitive")
}
