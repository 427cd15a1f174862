package decisionlog

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pulsefit/pulsefit-iam/internal/platform/httpx"
)

// Handler exposes decision history queries.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers decision history routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/recent", h.handleRecent)
	r.Get("/actor/{actorID}", h.handleByActor)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Recent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("recent decisions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleByActor(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	entries, err := h.service.ByActor(r.Context(), actorID, parseLimit(r))
	if err != nil {
		h.logger.Error("actor decisions", slog.String("actor", actorID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}
