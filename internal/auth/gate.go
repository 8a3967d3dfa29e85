package auth

import (
	"github.com/ukydev/fleet-commute/internal/models"
)

// Gate answers capability questions about an authenticated caller. It holds no state;
// the role table lives on models.Role.
type Gate struct{}

// Can reports whether the caller's role grants action.
func (Gate) Can(caller *models.Claims, action models.Action) bool {
	return caller != nil && caller.Role.HasPermission(action)
}

// IsAssignedDriver reports whether the caller drives trip.
func (Gate) IsAssignedDriver(caller *models.Claims, trip *models.Trip) bool {
	return caller != nil && trip != nil &&
		caller.Role.HasPermission(models.ActionDriveTrips) &&
		trip.IsAssignedTo(caller.UserID)
}
