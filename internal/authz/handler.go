package authz

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fieldvolt/fieldvolt-access/internal/auth"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/httpx"
)

// Handler exposes permission checks over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds the authz handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the check endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
	r.Post("/role-check", h.roleCheck)
}

type checkPayload struct {
	UserID   int64          `json:"user_id"`
	Resource string         `json:"resource" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Scope    string         `json:"scope"`
	Context  map[string]any `json:"context"`
}

type roleCheckPayload struct {
	Role     string         `json:"role" validate:"required"`
	Resource string         `json:"resource" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Scope    string         `json:"scope"`
	Context  map[string]any `json:"context"`
}

// check evaluates a full user-level decision, direct grants included. When
// the payload omits user_id the session user is checked.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var payload checkPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if payload.UserID == 0 {
		payload.UserID = auth.UserIDFromContext(r.Context())
	}
	if payload.UserID == 0 {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := validTuple(payload.Resource, payload.Action, payload.Scope); err != nil {
		httpx.RespondError(w, err)
		return
	}

	decision := h.service.CheckPermission(r.Context(), CheckRequest{
		UserID:    payload.UserID,
		Resource:  catalog.Resource(payload.Resource),
		Action:    catalog.Action(payload.Action),
		Scope:     catalog.Scope(payload.Scope),
		Context:   payload.Context,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	httpx.JSON(w, http.StatusOK, decision)
}

// roleCheck evaluates a role in isolation, without direct grants.
func (h *Handler) roleCheck(w http.ResponseWriter, r *http.Request) {
	var payload roleCheckPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	if err := validTuple(payload.Resource, payload.Action, payload.Scope); err != nil {
		httpx.RespondError(w, err)
		return
	}

	granted := h.service.HasActionPermission(r.Context(), payload.Role,
		catalog.Resource(payload.Resource), catalog.Action(payload.Action),
		catalog.Scope(payload.Scope), payload.Context)
	httpx.JSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

func validTuple(resource, action, scope string) error {
	if !catalog.ValidResource(catalog.Resource(resource)) {
		return fmt.Errorf("%w: unknown resource %q", httpx.ErrValidation, resource)
	}
	if !catalog.ValidAction(catalog.Action(action)) {
		return fmt.Errorf("%w: unknown action %q", httpx.ErrValidation, action)
	}
	if scope != "" && !catalog.ValidScope(catalog.Scope(scope)) {
		return fmt.Errorf("%w: unknown scope %q", httpx.ErrValidation, scope)
	}
	return nil
}
