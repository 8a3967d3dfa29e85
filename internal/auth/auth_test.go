package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("JWT_EXPIRY", "")
	service, err := NewService()
	require.NoError(t, err)
	return service
}

func TestNewService(t *testing.T) {
	service := newTestService(t)
	assert.Equal(t, []byte("test-secret"), service.jwtSecret)
	assert.Equal(t, 24*time.Hour, service.tokenExp)

	t.Setenv("JWT_EXPIRY", "90m")
	service, err := NewService()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, service.tokenExp)

	t.Setenv("JWT_EXPIRY", "soon")
	_, err = NewService()
	assert.Error(t, err)
}

func TestService_HashAndCheckPassword(t *testing.T) {
	service := newTestService(t)

	hash, err := service.HashPassword("testpassword123")
	require.NoError(t, err)
	assert.NotEqual(t, "testpassword123", hash)

	assert.True(t, service.CheckPassword("testpassword123", hash))
	assert.False(t, service.CheckPassword("wrongpassword", hash))
}

func TestService_ValidateToken(t *testing.T) {
	service := newTestService(t)

	user := &models.User{
		ID:       primitive.NewObjectID(),
		Username: "driver1",
		Role:     models.RoleDriver,
	}
	token, err := service.GenerateToken(user)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, user.Username, claims.Username)
	assert.Equal(t, models.RoleDriver, claims.Role)

	now := time.Now().Unix()
	assert.Greater(t, claims.Exp, now)
	assert.LessOrEqual(t, claims.Exp, now+int64(service.tokenExp.Seconds())+1)

	_, err = service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)
}

func TestService_ValidateToken_Rejects(t *testing.T) {
	service := newTestService(t)
	sign := func(claims tokenClaims, secret string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	valid := func(role models.Role, expires time.Time) tokenClaims {
		return tokenClaims{
			UserID: primitive.NewObjectID().Hex(),
			Role:   role,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				ExpiresAt: jwt.NewNumericDate(expires),
			},
		}
	}
	later := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "invalid-token", ErrInvalidToken},
		{"wrong secret", sign(valid(models.RoleDriver, later), "other"), ErrInvalidToken},
		{"expired", sign(valid(models.RoleDriver, time.Now().Add(-time.Hour)), "test-secret"), ErrExpiredToken},
		{"unknown role", sign(valid(models.Role("admin"), later), "test-secret"), ErrInvalidToken},
		{"foreign issuer", sign(func() tokenClaims {
			c := valid(models.RoleDriver, later)
			c.Issuer = "someone-else"
			return c
		}(), "test-secret"), ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			assert.Equal(t, tt.want, err)
		})
	}
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service := newTestService(t)

	extracted, err := service.ExtractTokenFromHeader("Bearer valid-token")
	assert.NoError(t, err)
	assert.Equal(t, "valid-token", extracted)

	for _, header := range []string{"", "InvalidFormat", "Bearer ", "Basic abc"} {
		_, err := service.ExtractTokenFromHeader(header)
		assert.Equal(t, ErrInvalidToken, err, header)
	}
}

func TestService_InputValidators(t *testing.T) {
	service := newTestService(t)

	assert.NoError(t, service.ValidatePassword("validpassword123"))
	assert.ErrorContains(t, service.ValidatePassword("short"), "at least 8 characters")

	assert.NoError(t, service.ValidateEmail("test@example.com"))
	for _, email := range []string{"testexample.com", "test@", "test", "@example.com"} {
		assert.ErrorContains(t, service.ValidateEmail(email), "invalid email format", email)
	}

	assert.NoError(t, service.ValidateUsername("testuser"))
	assert.ErrorContains(t, service.ValidateUsername("ab"), "at least 3 characters")
	assert.ErrorContains(t, service.ValidateUsername(strings.Repeat("a", 51)), "less than 50 characters")
}

func TestService_GenerateRefreshToken(t *testing.T) {
	service := newTestService(t)

	token, err := service.GenerateRefreshToken()
	assert.NoError(t, err)
	assert.Len(t, token, 44)
}

func TestGate(t *testing.T) {
	driverID := primitive.NewObjectID()
	trip := &models.Trip{DriverID: driverID}
	claims := func(id primitive.ObjectID, role models.Role) *models.Claims {
		return &models.Claims{UserID: id.Hex(), Role: role}
	}

	var gate Gate
	assert.True(t, gate.IsAssignedDriver(claims(driverID, models.RoleDriver), trip))
	assert.False(t, gate.IsAssignedDriver(claims(primitive.NewObjectID(), models.RoleDriver), trip))
	assert.False(t, gate.IsAssignedDriver(claims(driverID, models.RoleEmployee), trip), "role must drive trips")
	assert.False(t, gate.IsAssignedDriver(nil, trip))

	tests := []struct {
		role   models.Role
		action models.Action
		want   bool
	}{
		{models.RoleTravelAdmin, models.ActionManageTrips, true},
		{models.RoleCompanyAdmin, models.ActionManageTrips, false},
		{models.RoleCompanyAdmin, models.ActionViewAllTrips, true},
		{models.RoleCompanyAdmin, models.ActionManageVehicles, true},
		{models.RoleTravelAdmin, models.ActionExportTrips, true},
		{models.RoleDriver, models.ActionViewAllTrips, false},
		{models.RoleEmployee, models.ActionDriveTrips, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Can(claims(primitive.NewObjectID(), tt.role), tt.action))
		})
	}
	assert.False(t, gate.Can(nil, models.ActionViewAllTrips))
}
