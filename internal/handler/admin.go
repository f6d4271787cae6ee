package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/model"
)

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
}

func validRole(role model.UserRole) bool {
	switch role {
	case model.UserRoleAdmin, model.UserRoleTeacher, model.UserRoleReviewer:
		return true
	}
	return false
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		writeErr(w, http.StatusBadRequest, "username and password required")
		return
	}
	if req.Role == "" {
		req.Role = model.UserRoleTeacher
	}
	if !validRole(req.Role) {
		writeErr(w, http.StatusBadRequest, "invalid role")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	id, err := h.store.CreateUser(model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, "failed to create user: "+err.Error())
		return
	}

	u, err := h.store.GetUserByID(id)
	if err != nil || u == nil {
		slog.Error("failed to reload user", "id", id, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := intParam(r, "userID")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	u, err := h.store.GetUserByID(id)
	if err != nil {
		slog.Error("failed to get user", "id", id, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	if u == nil {
		writeErr(w, http.StatusNotFound, appI18n.T(r.Context(), "UserNotFound"))
		return
	}
	if current := model.UserFromContext(r.Context()); current != nil && current.ID == id {
		writeErr(w, http.StatusBadRequest, "cannot disable yourself")
		return
	}

	if err := h.store.SetUserActive(id, !u.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeErr(w, http.StatusNotFound, appI18n.T(r.Context(), "UserNotFound"))
			return
		}
		slog.Error("failed to toggle user active", "id", id, "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	u.Active = !u.Active
	writeJSON(w, http.StatusOK, u)
}
