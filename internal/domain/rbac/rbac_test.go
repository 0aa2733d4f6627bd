package rbac

import (
	"testing"
)

func TestHighestRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{name: "пустой набор", roles: nil, want: ""},
		{name: "один app_admin", roles: []string{RoleAdmin}, want: RoleAdmin},
		{name: "один user", roles: []string{RoleUser}, want: RoleUser},
		{name: "app_admin + user", roles: []string{RoleAdmin, RoleUser}, want: RoleAdmin},
		{name: "user + app_admin", roles: []string{RoleUser, RoleAdmin}, want: RoleAdmin},
		{name: "все user", roles: []string{RoleUser, RoleUser}, want: RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HighestRole(tt.roles)
			if got != tt.want {
				t.Errorf("HighestRole(%v) = %q, хотели %q", tt.roles, got, tt.want)
			}
		})
	}
}

func TestMapGroupsToRole(t *testing.T) {
	adminGroups := []string{"ortokids-admins"}
	userGroups := []string{"ortokids-users"}

	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{
			name:   "группа admins -> app_admin",
			groups: []string{"ortokids-admins"},
			want:   RoleAdmin,
		},
		{
			name:   "группа users -> user",
			groups: []string{"ortokids-users"},
			want:   RoleUser,
		},
		{
			name:   "обе группы -> app_admin (max)",
			groups: []string{"ortokids-admins", "ortokids-users"},
			want:   RoleAdmin,
		},
		{
			name:   "нет совпадений -> пустая строка",
			groups: []string{"other-group"},
			want:   "",
		},
		{
			name:   "пустой список групп -> пустая строка",
			groups: nil,
			want:   "",
		},
		{
			name:   "несколько групп, одна совпадает",
			groups: []string{"some-group", "ortokids-users", "another-group"},
			want:   RoleUser,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapGroupsToRole(tt.groups, adminGroups, userGroups)
			if got != tt.want {
				t.Errorf("MapGroupsToRole(%v, ...) = %q, хотели %q", tt.groups, got, tt.want)
			}
		})
	}
}

func TestMapGroupsToRole_CustomGroups(t *testing.T) {
	adminGroups := []string{"super-admins", "suporte"}
	userGroups := []string{"lojistas", "clinicas"}

	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{
			name:   "кастомная группа admin",
			groups: []string{"suporte"},
			want:   RoleAdmin,
		},
		{
			name:   "кастомная группа user",
			groups: []string{"clinicas"},
			want:   RoleUser,
		},
		{
			name:   "кастомная admin + user -> app_admin",
			groups: []string{"lojistas", "super-admins"},
			want:   RoleAdmin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapGroupsToRole(tt.groups, adminGroups, userGroups)
			if got != tt.want {
				t.Errorf("MapGroupsToRole(%v, ...) = %q, хотели %q", tt.groups, got, tt.want)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleUser, true},
		{"invalid", false},
		{"", false},
		{"superadmin", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got := IsValidRole(tt.role)
			if got != tt.want {
				t.Errorf("IsValidRole(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}
