package permission

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pulsefit/pulsefit-iam/internal/platform/httpx"
)

// Handler exposes permission-set administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers permission-set routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{role}", h.handleGet)
	r.Put("/{role}", h.handleUpdate)
}

type grantPayload struct {
	ResourceType string   `json:"resourceType" validate:"required"`
	Actions      []string `json:"actions" validate:"required,min=1"`
}

type createSetPayload struct {
	Role        string         `json:"role" validate:"required"`
	Grants      []grantPayload `json:"grants" validate:"dive"`
	Description string         `json:"description" validate:"required"`
	CreatedBy   string         `json:"createdBy" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createSetPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	set, err := h.service.Create(r.Context(), payload.Role, toGrants(payload.Grants), payload.Description, payload.CreatedBy)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, set)
}

type updateSetPayload struct {
	Grants []grantPayload `json:"grants" validate:"required,min=1,dive"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload updateSetPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	set, err := h.service.UpdateRolePermissions(r.Context(), chi.URLParam(r, "role"), toGrants(payload.Grants))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, set)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	set, err := h.service.Get(r.Context(), chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, set)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	sets, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list permission sets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sets": sets})
}

func toGrants(payloads []grantPayload) []Grant {
	grants := make([]Grant, len(payloads))
	for i, p := range payloads {
		grants[i] = Grant{ResourceType: p.ResourceType, Actions: p.Actions}
	}
	return grants
}
