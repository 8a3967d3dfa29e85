package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleCompanyAdmin Role = "company-admin"
	RoleTravelAdmin  Role = "travel-admin"
	RoleDriver       Role = "driver"
	RoleEmployee     Role = "employee"
)

// Action is a capability a role may hold.
type Action string

const (
	ActionViewAllTrips   Action = "view_all_trips"
	ActionManageTrips    Action = "manage_trips"
	ActionDriveTrips     Action = "drive_trips"
	ActionManageVehicles Action = "manage_vehicles"
	ActionManageRoutes   Action = "manage_routes"
	ActionExportTrips    Action = "export_trips"
	ActionManageUsers    Action = "manage_users"
)

// User represents a user in the system
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// FullName returns the display name, falling back to the username.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Role      Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleCompanyAdmin, RoleTravelAdmin, RoleDriver, RoleEmployee:
		return true
	default:
		return false
	}
}

// HasPermission reports whether the role holds the capability.
func (r Role) HasPermission(action Action) bool {
	switch r {
	case RoleCompanyAdmin:
		return action == ActionViewAllTrips || action == ActionManageVehicles || action == ActionExportTrips ||
			action == ActionManageUsers
	case RoleTravelAdmin:
		return action == ActionViewAllTrips || action == ActionManageTrips ||
			action == ActionManageRoutes || action == ActionExportTrips
	case RoleDriver:
		return action == ActionDriveTrips
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action Action) bool {
	return u.Role.HasPermission(action)
}
