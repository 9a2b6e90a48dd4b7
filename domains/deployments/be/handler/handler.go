// Package handler exposes the deployment engine over HTTP.
package handler

import (
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/erdbridge/erdbridge/domains/deployments/be/service"
	"github.com/erdbridge/erdbridge/platform/go/logging"
	"github.com/erdbridge/erdbridge/platform/go/validation"
)

const (
	problemTypeValidation = "https://erdbridge.dev/problems/validation-error"
	problemTypeNotFound   = "https://erdbridge.dev/problems/not-found"
	problemTypeConflict   = "https://erdbridge.dev/problems/conflict"
	problemTypeInternal   = "https://erdbridge.dev/problems/internal-error"
)

//go:embed deploy_request.schema.json
var deployRequestSchema []byte

const maxBodyBytes = 4 << 20

// problem is an RFC 7807 problem-details body.
type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Fields any    `json:"fields,omitempty"`
}

// Handler wires the deployments service to HTTP routes.
type Handler struct {
	svc       *service.Service
	validator *validation.Validator
	logger    *zap.Logger
}

// New constructs a Handler.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("deployments service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, validator: validation.New(), logger: logger}
}

// Routes mounts the deployment endpoints on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/deployments", h.deploy)
	r.Get("/deployments", h.list)
	r.Get("/deployments/{deploymentID}", h.get)
	r.Post("/deployments/{deploymentID}/rollback", h.rollback)
	r.Get("/rollbacks/active", h.activeRollbacks)
}

func (h *Handler) deploy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeProblem(w, problem{Type: problemTypeValidation, Title: "Invalid request body", Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}

	if err := h.validator.Validate("deploy-request", deployRequestSchema, body); err != nil {
		h.writeProblem(w, problem{Type: problemTypeValidation, Title: "Invalid deployment request", Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}

	var spec service.DeploymentSpec
	if err := json.Unmarshal(body, &spec); err != nil {
		h.writeProblem(w, problem{Type: problemTypeValidation, Title: "Invalid request body", Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}

	result, err := h.svc.Deploy(r.Context(), spec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if len(result.Errors) > 0 {
		// The deployment succeeded overall and was recorded, but some
		// objects failed per-item.
		status = http.StatusMultiStatus
	}
	h.writeJSON(w, status, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.Get(r.Context(), chi.URLParam(r, "deploymentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	records, total, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []service.DeploymentRecord{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"items":  records,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) rollback(w http.ResponseWriter, r *http.Request) {
	var req service.RollbackRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeProblem(w, problem{Type: problemTypeValidation, Title: "Invalid request body", Status: http.StatusBadRequest, Detail: err.Error()})
		return
	}
	req.DeploymentID = chi.URLParam(r, "deploymentID")

	resp, err := h.svc.Rollback(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) activeRollbacks(w http.ResponseWriter, r *http.Request) {
	active := h.svc.ActiveRollbacks()
	if active == nil {
		active = []service.ActiveRollback{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": active})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeProblem(w, problem{
			Type:   problemTypeValidation,
			Title:  "Validation failed",
			Status: http.StatusBadRequest,
			Fields: verr.Fields,
		})
	case errors.Is(err, service.ErrDeploymentNotFound):
		h.writeProblem(w, problem{Type: problemTypeNotFound, Title: "Deployment not found", Status: http.StatusNotFound})
	case errors.Is(err, service.ErrDeploymentConflict):
		h.writeProblem(w, problem{Type: problemTypeConflict, Title: "Deployment already exists", Status: http.StatusConflict})
	default:
		logging.FromRequest(r, h.logger).Error("request failed", zap.Error(err))
		h.writeProblem(w, problem{
			Type:   problemTypeInternal,
			Title:  "Internal error",
			Status: http.StatusInternalServerError,
			Detail: err.Error(),
		})
	}
}

func (h *Handler) writeProblem(w http.ResponseWriter, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		h.logger.Error("encoding problem response", zap.Error(err))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encoding response", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
