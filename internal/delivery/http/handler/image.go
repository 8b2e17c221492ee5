package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/user/college-service/internal/delivery/http/request"
	"github.com/user/college-service/internal/delivery/http/response"
	"github.com/user/college-service/internal/usecase"
)

func (h *Handler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readFile(w, r, request.ImageField)
	if !ok {
		return
	}

	asset, err := h.images.UploadFile(r.Context(), data)
	if err != nil {
		h.writeError(w, r, err, "Error uploading image")
		return
	}
	h.writeJSON(w, http.StatusOK, response.ImageUploadResponse{Success: true, ImageURL: asset.URL})
}

func (h *Handler) HandleUploadImageBuffer(w http.ResponseWriter, r *http.Request) {
	var req request.UploadBufferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadBody(w, err)
		return
	}

	asset, err := h.images.UploadEmbedded(r.Context(), req.Image)
	if err != nil {
		h.writeError(w, r, err, "Error uploading image buffer")
		return
	}
	h.writeJSON(w, http.StatusOK, response.ImageUploadResponse{Success: true, ImageURL: asset.URL})
}

// HandleUploadSingle stores one file in the CRM folder.
func (h *Handler) HandleUploadSingle(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readFile(w, r, request.ImageField)
	if !ok {
		return
	}

	assets, err := h.images.UploadBatch(r.Context(), [][]byte{data})
	if err != nil {
		h.writeError(w, r, err, "Upload failed")
		return
	}
	h.writeJSON(w, http.StatusOK, assets[0])
}

func (h *Handler) HandleUploadMultiple(w http.ResponseWriter, r *http.Request) {
	files, err := request.ReadFiles(r, request.ImagesField)
	if errors.Is(err, http.ErrMissingFile) {
		h.writeJSONError(w, "No files uploaded", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeBadBody(w, err)
		return
	}

	assets, err := h.images.UploadBatch(r.Context(), files)
	if err != nil {
		h.writeError(w, r, err, "Multiple upload failed")
		return
	}
	h.writeJSON(w, http.StatusOK, response.MultipleUploadResponse{
		Message: "Files uploaded successfully",
		Files:   assets,
	})
}

func (h *Handler) readFile(w http.ResponseWriter, r *http.Request, field string) ([]byte, bool) {
	data, err := request.ReadFile(r, field)
	if errors.Is(err, http.ErrMissingFile) {
		h.writeJSONError(w, "No image uploaded", http.StatusBadRequest)
		return nil, false
	}
	if err != nil {
		h.writeBadBody(w, err)
		return nil, false
	}
	if len(data) == 0 {
		h.writeError(w, r, usecase.ErrInvalidImage, "Error uploading image")
		return nil, false
	}
	return data, true
}
