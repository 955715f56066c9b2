package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldvolt/fieldvolt-access/internal/platform/httpx"
)

// Handler serves the audit log read API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs an audit HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/export", h.export)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries": result.Entries,
		"paging": map[string]any{
			"page":      result.Paging.Page,
			"page_size": result.Paging.PageSize,
			"has_next":  result.Paging.HasNext,
		},
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", err.Error())
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	var filters Filters

	if raw := strings.TrimSpace(q.Get("user_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Filters{}, err
		}
		filters.UserID = &id
	}
	filters.Kind = Kind(strings.TrimSpace(q.Get("kind")))
	filters.Resource = strings.TrimSpace(q.Get("resource"))
	filters.Action = strings.TrimSpace(q.Get("action"))
	if raw := strings.TrimSpace(q.Get("granted")); raw != "" {
		granted, err := strconv.ParseBool(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.Granted = &granted
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, err
		}
		filters.From = from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filters{}, err
		}
		filters.To = to
	}
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.Page = page
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return Filters{}, err
		}
		filters.PageSize = size
	}
	return filters, nil
}
