package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tuanvu-dev/campushub-auth/internal/apperror"
	"github.com/tuanvu-dev/campushub-auth/internal/auth"
	"github.com/tuanvu-dev/campushub-auth/internal/model"
	"github.com/tuanvu-dev/campushub-auth/internal/service"
)

// UserHandler exposes administrative user management.
//
// Everything requires authentication. Create, list, and delete are
// admin-only; get and update also work for the account's own user so people
// can read and edit their profile (a non-admin cannot change roles, their
// own included).
type UserHandler struct {
	svc    *service.UserService
	authn  *auth.Authenticator
	logger *slog.Logger
}

func NewUserHandler(svc *service.UserService, authn *auth.Authenticator, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, authn: authn, logger: logger}
}

// Routes mounts the user management endpoints on a chi router.
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.authn.Require)

	r.Group(func(r chi.Router) {
		r.Use(h.authn.RequireAdmin)
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Delete("/{id}", h.HandleDelete)
	})

	r.Get("/{id}", h.HandleGet)
	r.Patch("/{id}", h.HandleUpdate)

	return r
}

type createUserRequest struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	FullName  string     `json:"fullName"`
	StudentID string     `json:"studentId"`
	Role      model.Role `json:"role"`
}

// updateUserRequest mirrors service.UpdateUserInput: absent fields stay
// untouched, present fields (including empty strings) are applied.
type updateUserRequest struct {
	Email     *string     `json:"email"`
	Password  *string     `json:"password"`
	FullName  *string     `json:"fullName"`
	StudentID *string     `json:"studentId"`
	Role      *model.Role `json:"role"`
}

// HandleCreate makes an account on someone's behalf. Self-registration stays
// on /auth/register; this path exists so an admin can provision accounts.
//
// HTTP: POST /users
// 201 on success, 409 when the email is taken.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.svc.Create(r.Context(), service.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		StudentID: req.StudentID,
		Role:      req.Role,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleList returns all accounts.
//
// HTTP: GET /users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet returns one account. Admins can read anyone; everyone else only
// themselves.
//
// HTTP: GET /users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.adminOrSelf(w, r, id) {
		return
	}

	user, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate applies a partial update. Admins can edit anyone; everyone
// else only themselves, and never the role field.
//
// HTTP: PATCH /users/{id}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.adminOrSelf(w, r, id) {
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	caller, _ := auth.UserFromContext(r.Context())
	if req.Role != nil && caller.Role != model.RoleAdmin {
		writeForbidden(w, "only admins can change roles")
		return
	}

	user, err := h.svc.Update(r.Context(), id, service.UpdateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		StudentID: req.StudentID,
		Role:      req.Role,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleDelete removes an account and its identity links.
//
// HTTP: DELETE /users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// adminOrSelf authorizes reads/writes of a specific account: admins always,
// other callers only when the target is their own record. Writes a 403 and
// returns false otherwise.
func (h *UserHandler) adminOrSelf(w http.ResponseWriter, r *http.Request, targetID string) bool {
	caller, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return false
	}
	if caller.Role != model.RoleAdmin && caller.ID != targetID {
		writeForbidden(w, "you can only access your own account")
		return false
	}
	return true
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusForbidden, ErrorResponse{
		Error:   "forbidden",
		Message: message,
	})
}
