package portal

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fieldvolt/fieldvolt-access/internal/auth"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/httpx"
	"github.com/fieldvolt/fieldvolt-access/internal/users"
)

var titleCaser = cases.Title(language.English)

// displayNames holds the portals whose names are not plain title case.
var displayNames = map[string]string{
	catalog.PortalNETA: "NETA Testing",
	catalog.PortalHR:   "HR",
}

// DisplayName renders a portal identifier for UI labels.
func DisplayName(portal string) string {
	if name, ok := displayNames[portal]; ok {
		return name
	}
	return titleCaser.String(portal)
}

// UserSource resolves the session user for flag computation.
type UserSource interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// Handler serves portal access flags.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
	users    UserSource
}

// NewHandler builds the portal handler.
func NewHandler(logger *slog.Logger, resolver *Resolver, userSource UserSource) *Handler {
	return &Handler{logger: logger, resolver: resolver, users: userSource}
}

// MountRoutes registers the access flag endpoint.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{portal}/access", h.access)
}

type accessResponse struct {
	Portal      string `json:"portal"`
	DisplayName string `json:"display_name"`
	Access
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request) {
	portal := chi.URLParam(r, "portal")
	if !validPortal(portal) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	var current *users.User
	if userID != 0 {
		user, err := h.users.Get(r.Context(), userID)
		if err != nil {
			h.logger.Warn("load session user", slog.Int64("user_id", userID), slog.Any("error", err))
		} else {
			current = &user
		}
	}

	httpx.JSON(w, http.StatusOK, accessResponse{
		Portal:      portal,
		DisplayName: DisplayName(portal),
		Access:      h.resolver.Resolve(current, portal),
	})
}

func validPortal(name string) bool {
	switch name {
	case catalog.PortalAdmin, catalog.PortalHR, catalog.PortalNETA, catalog.PortalEquipment, catalog.PortalOffice:
		return true
	}
	return false
}
