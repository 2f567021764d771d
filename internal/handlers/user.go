package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/biblio-hub/apiserver/internal/services"
	"github.com/biblio-hub/apiserver/internal/store"
	"github.com/biblio-hub/apiserver/types"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

// UserHandler provides account administration handlers.
type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers account administration routes. All routes require
// an authenticated admin.
func UserRouter(
	r chi.Router,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewUserHandler(userService)
	admin := RequireRole(userService, types.RoleAdmin)

	r.Use(authMiddleware, admin)
	r.Get("/", handler.ListUsers)
	r.Post("/", handler.CreateUser)
	r.Route("/{role}/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Put("/", handler.UpdateUser)
		r.Delete("/", handler.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := types.Role(strings.TrimSpace(r.URL.Query().Get("role")))
	if role != "" && !role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	users, err := h.userService.List(r.Context(), role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{Items: users, Total: len(users)})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	role, id, err := parseUserPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.Get(r.Context(), role, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if req.Email == "" || req.FamilyName == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email, family_name and password are required")
		return
	}

	if _, err := h.userService.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	created, err := h.userService.Create(r.Context(), types.User{
		Role:         req.Role,
		FamilyName:   req.FamilyName,
		GivenName:    req.GivenName,
		Email:        req.Email,
		BirthDate:    req.BirthDate,
		PasswordHash: string(hash),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	role, id, err := parseUserPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UserUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	current, err := h.userService.Get(r.Context(), role, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	if req.FamilyName != "" {
		current.FamilyName = req.FamilyName
	}
	if req.GivenName != "" {
		current.GivenName = req.GivenName
	}
	if req.Email != "" {
		current.Email = req.Email
	}
	if req.BirthDate != "" {
		current.BirthDate = req.BirthDate
	}
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update user")
			return
		}
		current.PasswordHash = string(hash)
	}

	updated, err := h.userService.Update(r.Context(), current)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	role, id, err := parseUserPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.Delete(r.Context(), role, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UserUpsertRequest is the create/update payload for accounts.
type UserUpsertRequest struct {
	Role       types.Role `json:"role"`
	FamilyName string     `json:"family_name"`
	GivenName  string     `json:"given_name"`
	Email      string     `json:"email"`
	BirthDate  string     `json:"birth_date"`
	Password   string     `json:"password"`
}

// UserListResponse is the account list payload.
type UserListResponse struct {
	Items []types.User `json:"items"`
	Total int          `json:"total"`
}

func parseUserPath(r *http.Request) (types.Role, string, error) {
	role := types.Role(chi.URLParam(r, "role"))
	if !role.Valid() {
		return "", "", errors.New("invalid role")
	}
	id := chi.URLParam(r, "userID")
	if id == "" {
		return "", "", errors.New("invalid user id")
	}
	return role, id, nil
}
