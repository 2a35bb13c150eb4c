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

// Package authz maps directory roles to the permissions route guards
// check. Role names themselves form a closed set; any equivalence
// between roles is expressed here, not in the directory.
package authz

import "github.com/marketbase/marketbase/internal/directory"

// Permission names checked by route guards and admin handlers.
const (
	PermTenantManageUsers    = "tenant:manage_users"
	PermTenantManageSettings = "tenant:manage_settings"
	PermTenantView           = "tenant:view"
	PermTenantViewAudit      = "tenant:view_audit"

	PermWorkspaceManage = "workspace:manage"
	PermWorkspaceView   = "workspace:view"

	PermProfileRead  = "profile:read"
	PermProfileWrite = "profile:write"
)

// tenantAdminPermissions is shared by tenant_admin and workspace_admin.
// The two roles are distinct names in the directory but carry identical
// authority today.
var tenantAdminPermissions = []string{
	PermTenantManageUsers,
	PermTenantManageSettings,
	PermTenantView,
	PermTenantViewAudit,
	PermWorkspaceManage,
	PermWorkspaceView,
	PermProfileRead,
	PermProfileWrite,
}

var workspaceMemberPermissions = []string{
	PermTenantView,
	PermWorkspaceView,
	PermProfileRead,
	PermProfileWrite,
}

var rolePermissions = map[directory.Role][]string{
	directory.RoleTenantAdmin:     tenantAdminPermissions,
	directory.RoleWorkspaceAdmin:  tenantAdminPermissions,
	directory.RoleWorkspaceMember: workspaceMemberPermissions,
}

// Can reports whether the role grants the permission. Unknown roles
// grant nothing.
func Can(role directory.Role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// Permissions returns the permission set for a role. The returned slice
// must not be mutated by callers.
func Permissions(role directory.Role) []string {
	return rolePermissions[role]
}

// CanManageWorkspace reports whether the role may create, reconfigure,
// or delete workspaces within its tenant.
func CanManageWorkspace(role directory.Role) bool {
	return Can(role, PermWorkspaceManage)
}

// CanManageTenant reports whether the role may administer tenant-level
// settings and users.
func CanManageTenant(role directory.Role) bool {
	return Can(role, PermTenantManageUsers)
}
