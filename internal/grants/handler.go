package grants

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fieldvolt/fieldvolt-access/internal/auth"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/httpx"
)

// Handler serves direct-grant administration.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a grants HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches grant routes under /users/{userID}/grants.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.grant)
	r.Delete("/{grantID}", h.revoke)
}

type grantPayload struct {
	Resource   string          `json:"resource" validate:"required"`
	Action     string          `json:"action" validate:"required"`
	Scope      string          `json:"scope"`
	Condition  json.RawMessage `json:"condition,omitempty"`
	ValidFrom  *time.Time      `json:"valid_from,omitempty"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid user id")
		return
	}
	grants, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("list grants", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": grants})
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid user id")
		return
	}
	var payload grantPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}

	grant, err := h.service.Grant(r.Context(), GrantInput{
		UserID:     userID,
		Resource:   catalog.Resource(payload.Resource),
		Action:     catalog.Action(payload.Action),
		Scope:      catalog.Scope(payload.Scope),
		Condition:  payload.Condition,
		ValidFrom:  payload.ValidFrom,
		ValidUntil: payload.ValidUntil,
	}, auth.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Grant", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, grant)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid user id")
		return
	}
	grantID, err := uuid.Parse(chi.URLParam(r, "grantID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "invalid grant id")
		return
	}
	if err := h.service.Revoke(r.Context(), userID, grantID, auth.UserIDFromContext(r.Context())); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "grant not found or already revoked")
			return
		}
		h.logger.Error("revoke grant", slog.String("grant_id", grantID.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
}
