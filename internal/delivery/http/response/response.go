package response

import "github.com/user/college-service/internal/repository"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// ImageUploadResponse is returned by the standalone image upload routes.
type ImageUploadResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl"`
}

// MultipleUploadResponse lists the assets stored by a batch upload.
type MultipleUploadResponse struct {
	Message string             `json:"message"`
	Files   []repository.Asset `json:"files"`
}

// HealthResponse maps each dependency to "healthy" or "unhealthy".
type HealthResponse map[string]string
