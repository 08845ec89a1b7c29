// Package users exposes the admin user-management endpoints. All routes
// require the admin:users permission; regular accounts never reach these
// handlers.
package users

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/planwise/backend/internal/auth"
	"github.com/planwise/backend/internal/authz"
	"github.com/planwise/backend/internal/repository"
)

const (
	CodeUserNotFound = "USER_NOT_FOUND"
)

// UserResponse is the public view of an account. The PIN hash never
// leaves the repository layer.
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	ImageURL    string     `json:"imageUrl,omitempty"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	IsActive    bool       `json:"isActive"`
}

// UpdateRoleRequest is the payload for a role change.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// Handler serves the user-management endpoints.
type Handler struct {
	repo   repository.UserRepository
	logger *slog.Logger
}

// NewHandler creates a user-management handler.
func NewHandler(repo repository.UserRepository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// Get handles GET /users/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, auth.CodeValidationError, "Invalid user ID")
		return
	}

	user, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, CodeUserNotFound, "User not found")
			return
		}
		h.logger.Error("failed to load user", "user_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	h.writeSuccess(w, http.StatusOK, toResponse(user))
}

// UpdateRole handles PUT /users/{id}/role
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, auth.CodeValidationError, "Invalid user ID")
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, auth.CodeValidationError, "Invalid request payload")
		return
	}

	role := authz.Role(req.Role)
	if !role.Valid() {
		h.writeError(w, http.StatusBadRequest, auth.CodeValidationError, "Role must be one of: user, premium, admin")
		return
	}

	if err := h.repo.UpdateRole(r.Context(), id, string(role)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, CodeUserNotFound, "User not found")
			return
		}
		h.logger.Error("failed to update role", "user_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	h.logger.Info("user role updated", "user_id", id, "role", role)
	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"id":   id.String(),
		"role": string(role),
	})
}

// Delete handles DELETE /users/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, auth.CodeValidationError, "Invalid user ID")
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, CodeUserNotFound, "User not found")
			return
		}
		h.logger.Error("failed to delete user", "user_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	h.logger.Info("user deleted", "user_id", id)
	h.writeSuccess(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

func toResponse(u *repository.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		Username:    u.Username,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		ImageURL:    u.ImageURL,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
		IsActive:    u.IsActive,
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(auth.APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(auth.APIResponse{
		Success:   false,
		Error:     &auth.APIError{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
}
