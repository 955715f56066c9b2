package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldvolt/fieldvolt-access/internal/auth"
	"github.com/fieldvolt/fieldvolt-access/internal/condition"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/httpx"
)

// Handler serves role catalog administration.
type Handler struct {
	logger   *slog.Logger
	store    *Store
	validate *validator.Validate
	onChange func()
}

// NewHandler constructs a catalog HTTP handler. onChange runs after every
// successful mutation (cache invalidation); it may be nil.
func NewHandler(logger *slog.Logger, store *Store, onChange func()) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		store:    store,
		validate: validator.New(),
		onChange: onChange,
	}
}

// MountRoutes attaches role catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{name}", h.get)
	r.Get("/{name}/permissions", h.effectivePermissions)
	r.Put("/{name}", h.upsert)
	r.Delete("/{name}", h.remove)
}

type permissionPayload struct {
	Resource  string          `json:"resource" validate:"required"`
	Action    string          `json:"action" validate:"required"`
	Scope     string          `json:"scope"`
	Condition json.RawMessage `json:"condition,omitempty"`
}

type rolePayload struct {
	Portals          *[]string            `json:"portals"`
	CanManageUsers   *bool                `json:"can_manage_users"`
	CanManageContent *bool                `json:"can_manage_content"`
	CanViewAllData   *bool                `json:"can_view_all_data"`
	Permissions      *[]permissionPayload `json:"permissions"`
	ParentRole       *string              `json:"parent_role"`
	Priority         *int                 `json:"priority"`
}

type roleResponse struct {
	Name             string               `json:"name"`
	Portals          []string             `json:"portals"`
	CanManageUsers   bool                 `json:"can_manage_users"`
	CanManageContent bool                 `json:"can_manage_content"`
	CanViewAllData   bool                 `json:"can_view_all_data"`
	Permissions      []permissionResponse `json:"permissions"`
	ParentRole       string               `json:"parent_role,omitempty"`
	IsSystemRole     bool                 `json:"is_system_role"`
	Priority         int                  `json:"priority"`
}

type permissionResponse struct {
	Resource  string         `json:"resource"`
	Action    string         `json:"action"`
	Scope     string         `json:"scope,omitempty"`
	Condition condition.Expr `json:"condition,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles := h.store.All()
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, ok := h.store.Get(chi.URLParam(r, "name"))
	if !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown role")
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := h.store.Get(name); !ok {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown role")
		return
	}
	perms := h.store.EffectivePermissions(name)
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	patch, err := h.toPatch(payload)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	role, err := h.store.Upsert(r.Context(), chi.URLParam(r, "name"), patch, auth.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.onChange != nil {
		h.onChange()
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.store.Delete(r.Context(), name, auth.UserIDFromContext(r.Context()))
	switch {
	case err == nil:
	case err == ErrNotFound:
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown role")
		return
	case err == ErrSystemRole:
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "system roles cannot be deleted")
		return
	default:
		h.logger.Error("delete role", slog.String("role", name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.onChange != nil {
		h.onChange()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toPatch(payload rolePayload) (RolePatch, error) {
	patch := RolePatch{
		Portals:          payload.Portals,
		CanManageUsers:   payload.CanManageUsers,
		CanManageContent: payload.CanManageContent,
		CanViewAllData:   payload.CanViewAllData,
		ParentRole:       payload.ParentRole,
		Priority:         payload.Priority,
	}
	if payload.Permissions == nil {
		return patch, nil
	}
	perms := make([]Permission, 0, len(*payload.Permissions))
	for _, p := range *payload.Permissions {
		if err := h.validate.Struct(p); err != nil {
			return RolePatch{}, err
		}
		perm := Permission{
			Resource: Resource(p.Resource),
			Action:   Action(p.Action),
			Scope:    Scope(p.Scope),
		}
		if !ValidResource(perm.Resource) || !ValidAction(perm.Action) || !ValidScope(perm.Scope) {
			return RolePatch{}, errInvalidPermission(p.Resource, p.Action, p.Scope)
		}
		if len(p.Condition) > 0 {
			expr, err := condition.Decode(p.Condition)
			if err != nil {
				return RolePatch{}, err
			}
			perm.Condition = expr
		}
		perms = append(perms, perm)
	}
	patch.Permissions = &perms
	return patch, nil
}

func errInvalidPermission(resource, action, scope string) error {
	return fmt.Errorf("catalog: invalid permission %s/%s/%s", resource, action, scope)
}

func toRoleResponse(role RoleDefinition) roleResponse {
	perms := make([]permissionResponse, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}
	return roleResponse{
		Name:             role.Name,
		Portals:          role.Portals,
		CanManageUsers:   role.CanManageUsers,
		CanManageContent: role.CanManageContent,
		CanViewAllData:   role.CanViewAllData,
		Permissions:      perms,
		ParentRole:       role.ParentRole,
		IsSystemRole:     role.IsSystemRole,
		Priority:         role.Priority,
	}
}

func toPermissionResponse(p Permission) permissionResponse {
	return permissionResponse{
		Resource:  string(p.Resource),
		Action:    string(p.Action),
		Scope:     string(p.Scope),
		Condition: p.Condition,
	}
}
