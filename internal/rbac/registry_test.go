package rbac

import "testing"

func customDefs() []Definition {
	return []Definition{
		{
			ID:   "role-lab",
			Name: "lab_technician",
			Permissions: PermissionSet{
				ResourcePatients:       {ActionRead},
				ResourceMedicalRecords: {ActionCreate, ActionRead},
			},
		},
		{
			ID:       "role-admin-copy",
			Name:     "admin",
			IsSystem: true,
			Permissions: PermissionSet{
				// Deliberately narrower than the built-in admin entry.
				ResourcePatients: {ActionRead},
			},
		},
	}
}

func TestRegistryHasPermission(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Replace(customDefs())

	if !reg.HasPermission("lab_technician", ResourceMedicalRecords, ActionCreate) {
		t.Fatalf("expected lab_technician to create medical_records")
	}
	if reg.HasPermission("lab_technician", ResourcePatients, ActionUpdate) {
		t.Fatalf("ungranted action allowed")
	}
	if reg.HasPermission("unknown", ResourcePatients, ActionRead) {
		t.Fatalf("unknown custom role allowed")
	}
}

func TestRegistryReplaceDropsStaleRoles(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Replace(customDefs())
	reg.Replace(nil)

	if reg.HasPermission("lab_technician", ResourcePatients, ActionRead) {
		t.Fatalf("stale role survived a replace")
	}
}

func TestResolverPrefersStaticTable(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Replace(customDefs())
	resolver := NewResolver(NewEngine(), reg)

	// The server also carries an "admin" definition, but the baked-in table
	// stays authoritative for built-in roles.
	if !resolver.HasPermission(RoleAdmin, ResourcePatients, ActionDelete) {
		t.Fatalf("static admin entry was shadowed by the dynamic table")
	}
	// Custom roles resolve through the registry.
	if !resolver.HasPermission("lab_technician", ResourcePatients, ActionRead) {
		t.Fatalf("custom role not resolved")
	}
	// Known to neither origin: denied.
	if resolver.HasPermission("ghost", ResourcePatients, ActionRead) {
		t.Fatalf("unknown role allowed")
	}
}

func TestResolverWithoutRegistry(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(NewEngine(), nil)
	if resolver.HasPermission("lab_technician", ResourcePatients, ActionRead) {
		t.Fatalf("nil registry must deny custom roles")
	}
	if !resolver.HasPermission(RoleUser, ResourcePatients, ActionRead) {
		t.Fatalf("built-in role must still resolve")
	}
	if perms := resolver.RolePermissions("lab_technician"); len(perms) != 0 {
		t.Fatalf("expected empty set, got %v", perms)
	}
}

func TestResolverRolePermissionsCopies(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Replace(customDefs())
	resolver := NewResolver(NewEngine(), reg)

	perms := resolver.RolePermissions("lab_technician")
	perms[ResourcePatients] = append(perms[ResourcePatients], ActionDelete)

	if resolver.HasPermission("lab_technician", ResourcePatients, ActionDelete) {
		t.Fatalf("mutating the returned set corrupted the registry")
	}
}
