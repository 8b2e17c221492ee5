package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/user/college-service/internal/delivery/http/response"
	"github.com/user/college-service/internal/entity"
	"github.com/user/college-service/internal/repository"
	"github.com/user/college-service/internal/usecase"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is a dependency reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	colleges usecase.CollegeManager
	images   usecase.ImageUploader
	checks   map[string]Pinger
	logger   *zap.Logger
}

// NewHandler creates the HTTP handlers. checks names the dependencies
// reported by the health endpoint.
func NewHandler(colleges usecase.CollegeManager, images usecase.ImageUploader, checks map[string]Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		colleges: colleges,
		images:   images,
		checks:   checks,
		logger:   logger,
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := response.HealthResponse{}
	healthy := true
	for name, dep := range h.checks {
		if err := dep.Ping(ctx); err != nil {
			status[name] = "unhealthy"
			healthy = false
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			continue
		}
		status[name] = "healthy"
	}

	if !healthy {
		h.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Message: message})
}

// writeBadBody reports an unreadable request body.
func (h *Handler) writeBadBody(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.writeJSONError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	h.writeJSON(w, http.StatusBadRequest, response.ErrorResponse{Message: "Invalid request body", Error: err.Error()})
}

// writeError maps a use case error to its status code. Unclassified errors
// are logged and reported as 500 with message as the description.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var (
		extractErr *usecase.ExtractionError
		uploadErr  *repository.UploadError
	)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeJSONError(w, "College not found", http.StatusNotFound)
	case errors.As(err, &extractErr),
		errors.Is(err, entity.ErrValidation),
		errors.Is(err, usecase.ErrInvalidImage),
		errors.Is(err, usecase.ErrTooManyFiles):
		h.writeJSON(w, http.StatusBadRequest, response.ErrorResponse{Message: message, Error: err.Error()})
	case errors.As(err, &uploadErr):
		h.logger.Warn("media store failure",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusBadGateway, response.ErrorResponse{Message: message, Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("request timed out",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
		)
		h.writeJSONError(w, "Request timed out", http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		// client went away, nobody reads the response
		h.logger.Debug("request canceled", zap.String("path", r.URL.Path))
	default:
		h.logger.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusInternalServerError, response.ErrorResponse{Message: message, Error: err.Error()})
	}
}
