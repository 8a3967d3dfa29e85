package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/fleet-commute/internal/apperr"
	"github.com/ukydev/fleet-commute/internal/auth"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/middleware"
	"github.com/ukydev/fleet-commute/internal/models"
)

const msgInvalidCredentials = "Invalid credentials"

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
	}
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := decodeJSON(r, &loginReq); err != nil {
		writeError(w, r, err)
		return
	}
	if loginReq.Username == "" || loginReq.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.userCollection.FindUserByUsername(r.Context(), loginReq.Username)
	if errors.Is(err, apperr.ErrNotFound) {
		writeMessage(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !user.IsActive {
		writeMessage(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}
	if !h.authService.CheckPassword(loginReq.Password, user.PasswordHash) {
		writeMessage(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	response, err := h.issue(user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// A failed bookkeeping write does not fail the login.
	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("Failed to update last login")
	}

	log.WithFields(log.Fields{"user_id": user.ID.Hex(), "role": user.Role}).Info("User logged in")
	writeJSON(w, http.StatusOK, response)
}

// Register handles user registration. Anyone may create an employee account, which is
// also the default role; other roles need a caller who manages users.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerReq models.RegisterRequest
	if err := decodeJSON(r, &registerReq); err != nil {
		writeError(w, r, err)
		return
	}
	registerReq.Username = strings.TrimSpace(registerReq.Username)
	registerReq.Email = strings.ToLower(strings.TrimSpace(registerReq.Email))
	if registerReq.Role == "" {
		registerReq.Role = models.RoleEmployee
	}

	for _, check := range []func() error{
		func() error { return h.authService.ValidateUsername(registerReq.Username) },
		func() error { return h.authService.ValidateEmail(registerReq.Email) },
		func() error { return h.authService.ValidatePassword(registerReq.Password) },
	} {
		if err := check(); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if !models.IsValidRole(registerReq.Role) {
		writeMessage(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if registerReq.Role != models.RoleEmployee {
		claims, ok := middleware.GetUserFromContext(r.Context())
		if !ok || !claims.Role.HasPermission(models.ActionManageUsers) {
			log.WithField("role", registerReq.Role).Warn("Rejected registration of a privileged account")
			writeMessage(w, http.StatusForbidden, "Only an administrator can create "+string(registerReq.Role)+" accounts")
			return
		}
	}

	if taken, err := h.exists(r, h.userCollection.FindUserByUsername, registerReq.Username); err != nil {
		writeError(w, r, err)
		return
	} else if taken {
		writeMessage(w, http.StatusConflict, "Username already exists")
		return
	}
	if taken, err := h.exists(r, h.userCollection.FindUserByEmail, registerReq.Email); err != nil {
		writeError(w, r, err)
		return
	} else if taken {
		writeMessage(w, http.StatusConflict, "Email already exists")
		return
	}

	passwordHash, err := h.authService.HashPassword(registerReq.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Username:     registerReq.Username,
		Email:        registerReq.Email,
		PasswordHash: passwordHash,
		Role:         registerReq.Role,
		FirstName:    registerReq.FirstName,
		LastName:     registerReq.LastName,
		Phone:        registerReq.Phone,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.userCollection.InsertUser(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}

	response, err := h.issue(&user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.WithFields(log.Fields{"user_id": user.ID.Hex(), "role": user.Role}).Info("User registered")
	writeJSON(w, http.StatusCreated, response)
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var updateReq struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	}
	if err := decodeJSON(r, &updateReq); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}

	if updateReq.FirstName != "" {
		user.FirstName = updateReq.FirstName
	}
	if updateReq.LastName != "" {
		user.LastName = updateReq.LastName
	}
	if updateReq.Phone != "" {
		user.Phone = updateReq.Phone
	}
	if email := strings.ToLower(strings.TrimSpace(updateReq.Email)); email != "" && email != user.Email {
		if err := h.authService.ValidateEmail(email); err != nil {
			writeMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		existing, err := h.userCollection.FindUserByEmail(r.Context(), email)
		switch {
		case err == nil && existing.ID.Hex() != claims.UserID:
			writeMessage(w, http.StatusConflict, "Email already exists")
			return
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			writeError(w, r, err)
			return
		}
		user.Email = email
	}

	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Profile updated successfully")
}

// ChangePassword changes the current user's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := caller(w, r)
	if !ok {
		return
	}

	var passwordReq struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &passwordReq); err != nil {
		writeError(w, r, err)
		return
	}
	if passwordReq.CurrentPassword == "" || passwordReq.NewPassword == "" {
		writeMessage(w, http.StatusBadRequest, "Current password and new password are required")
		return
	}
	if err := h.authService.ValidatePassword(passwordReq.NewPassword); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		h.writeUserError(w, r, err)
		return
	}
	if !h.authService.CheckPassword(passwordReq.CurrentPassword, user.PasswordHash) {
		writeMessage(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	newPasswordHash, err := h.authService.HashPassword(passwordReq.NewPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user.PasswordHash = newPasswordHash
	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		writeError(w, r, err)
		return
	}

	log.WithField("user_id", claims.UserID).Info("Password changed")
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

func (h *AuthHandler) issue(user *models.User) (models.LoginResponse, error) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return models.LoginResponse{}, apperr.Infrastructure("generate token", err)
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		return models.LoginResponse{}, apperr.Infrastructure("generate refresh token", err)
	}
	return models.LoginResponse{Token: token, RefreshToken: refreshToken, User: *user}, nil
}

// exists reports whether find locates a user, treating NotFound as a free value.
func (h *AuthHandler) exists(r *http.Request, find func(ctx context.Context, key string) (*models.User, error), key string) (bool, error) {
	_, err := find(r.Context(), key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (h *AuthHandler) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeError(w, r, err)
}
