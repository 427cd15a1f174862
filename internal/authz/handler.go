package authz

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pulsefit/pulsefit-iam/internal/platform/httpx"
	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Handler exposes the authorization check API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers authorization routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.handleCheck)
	r.Post("/batch", h.handleBatch)
	r.Post("/share", h.handleShare)
}

type actorPayload struct {
	ID             string `json:"id" validate:"required"`
	Role           string `json:"role" validate:"required"`
	OrganizationID string `json:"organizationId"`
	Status         string `json:"status" validate:"required"`
}

type contextPayload struct {
	OrganizationID string         `json:"organizationId"`
	ResourceID     string         `json:"resourceId"`
	Metadata       map[string]any `json:"metadata"`
	Environment    map[string]any `json:"environment"`
}

type checkPayload struct {
	Actor    actorPayload   `json:"actor" validate:"required"`
	Resource string         `json:"resource" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Context  contextPayload `json:"context"`
}

type decisionResponse struct {
	Granted   bool      `json:"granted"`
	Reason    string    `json:"reason"`
	Strategy  string    `json:"strategy"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var payload checkPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	decision := h.service.ValidateAccess(r.Context(),
		toActor(payload.Actor), payload.Resource, payload.Action, toAccessContext(payload.Context))
	httpx.JSON(w, http.StatusOK, toDecisionResponse(decision))
}

type batchPayload struct {
	Requests []checkPayload `json:"requests" validate:"required,min=1,dive"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var payload batchPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	requests := make([]AccessRequest, len(payload.Requests))
	for i, p := range payload.Requests {
		requests[i] = AccessRequest{
			Actor:    toActor(p.Actor),
			Resource: p.Resource,
			Action:   p.Action,
			Context:  toAccessContext(p.Context),
		}
	}
	decisions := h.service.BatchAuthorize(r.Context(), requests)
	out := make([]decisionResponse, len(decisions))
	for i, d := range decisions {
		out[i] = toDecisionResponse(d)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": out})
}

type sharePayload struct {
	Actor    actorPayload `json:"actor" validate:"required"`
	Target   actorPayload `json:"target" validate:"required"`
	Resource string       `json:"resource" validate:"required"`
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	var payload sharePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	allowed := h.service.CanShare(r.Context(), toActor(payload.Actor), toActor(payload.Target), payload.Resource)
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func toActor(p actorPayload) shared.Actor {
	return shared.Actor{ID: p.ID, Role: p.Role, OrganizationID: p.OrganizationID, Status: p.Status}
}

func toAccessContext(p contextPayload) AccessContext {
	return AccessContext{
		OrganizationID: p.OrganizationID,
		ResourceID:     p.ResourceID,
		Metadata:       p.Metadata,
		Environment:    p.Environment,
	}
}

func toDecisionResponse(d AccessDecision) decisionResponse {
	return decisionResponse{
		Granted:   d.Granted,
		Reason:    d.Reason,
		Strategy:  d.Strategy,
		Timestamp: d.Timestamp,
	}
}
