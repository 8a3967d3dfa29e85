package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"company admin role", RoleCompanyAdmin, true},
		{"travel admin role", RoleTravelAdmin, true},
		{"driver role", RoleDriver, true},
		{"employee role", RoleEmployee, true},
		{"invalid role", "admin", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestUser_HasPermission(t *testing.T) {
	companyAdmin := &User{Role: RoleCompanyAdmin}
	travelAdmin := &User{Role: RoleTravelAdmin}
	driver := &User{Role: RoleDriver}
	employee := &User{Role: RoleEmployee}

	tests := []struct {
		name     string
		user     *User
		action   Action
		expected bool
	}{
		{"company admin can view all trips", companyAdmin, ActionViewAllTrips, true},
		{"company admin can manage vehicles", companyAdmin, ActionManageVehicles, true},
		{"company admin can export trips", companyAdmin, ActionExportTrips, true},
		{"company admin cannot manage trips", companyAdmin, ActionManageTrips, false},
		{"company admin cannot drive", companyAdmin, ActionDriveTrips, false},
		{"company admin can manage users", companyAdmin, ActionManageUsers, true},

		{"travel admin can manage trips", travelAdmin, ActionManageTrips, true},
		{"travel admin can manage routes", travelAdmin, ActionManageRoutes, true},
		{"travel admin can view all trips", travelAdmin, ActionViewAllTrips, true},
		{"travel admin cannot manage vehicles", travelAdmin, ActionManageVehicles, false},
		{"travel admin cannot manage users", travelAdmin, ActionManageUsers, false},

		{"driver can drive", driver, ActionDriveTrips, true},
		{"driver cannot manage trips", driver, ActionManageTrips, false},
		{"driver cannot view all trips", driver, ActionViewAllTrips, false},

		{"employee cannot drive", employee, ActionDriveTrips, false},
		{"employee cannot view all trips", employee, ActionViewAllTrips, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.user.HasPermission(tt.action)
			if result != tt.expected {
				t.Errorf("User with role %s HasPermission(%s) = %v, want %v",
					tt.user.Role, tt.action, result, tt.expected)
			}
		})
	}
}

func TestUser_FullName(t *testing.T) {
	u := &User{Username: "mike", FirstName: "Mike", LastName: "Driver"}
	if got := u.FullName(); got != "Mike Driver" {
		t.Errorf("FullName() = %q, want %q", got, "Mike Driver")
	}
	u = &User{Username: "mike"}
	if got := u.FullName(); got != "mike" {
		t.Errorf("FullName() = %q, want %q", got, "mike")
	}
}
