package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/college-service/internal/delivery/http/request"
	"github.com/user/college-service/internal/delivery/http/response"
	"github.com/user/college-service/internal/entity"
)

// CollegeParam is the route parameter naming a college. GET reads it as a
// college name, PUT and DELETE as an id.
const CollegeParam = "college"

func (h *Handler) HandleListColleges(w http.ResponseWriter, r *http.Request) {
	colleges, err := h.colleges.List(r.Context())
	if err != nil {
		h.writeError(w, r, err, "Failed to list colleges")
		return
	}
	h.writeJSON(w, http.StatusOK, colleges)
}

// HandleFindColleges returns every college with the given name. No match
// is an empty array, not a 404.
func (h *Handler) HandleFindColleges(w http.ResponseWriter, r *http.Request) {
	colleges, err := h.colleges.FindByName(r.Context(), chi.URLParam(r, CollegeParam))
	if err != nil {
		h.writeError(w, r, err, "Failed to find colleges")
		return
	}
	h.writeJSON(w, http.StatusOK, colleges)
}

func (h *Handler) HandleCreateCollege(w http.ResponseWriter, r *http.Request) {
	doc, err := entity.DecodeRecord(r.Body)
	if err != nil {
		h.writeBadBody(w, err)
		return
	}

	college, err := h.colleges.Create(r.Context(), doc)
	if err != nil {
		h.writeError(w, r, err, "Failed to create college")
		return
	}
	h.writeJSON(w, http.StatusCreated, college)
}

func (h *Handler) HandleCreateCollegeWithUpload(w http.ResponseWriter, r *http.Request) {
	form, err := request.ParseCollegeForm(r)
	if err != nil {
		h.writeBadBody(w, err)
		return
	}

	college, err := h.colleges.CreateWithUpload(r.Context(), form.Document, form.Image)
	if err != nil {
		h.writeError(w, r, err, "Failed to create college")
		return
	}
	h.writeJSON(w, http.StatusCreated, college)
}

func (h *Handler) HandleUpdateCollege(w http.ResponseWriter, r *http.Request) {
	doc, err := entity.DecodeRecord(r.Body)
	if err != nil {
		h.writeBadBody(w, err)
		return
	}

	college, err := h.colleges.Update(r.Context(), chi.URLParam(r, CollegeParam), doc)
	if err != nil {
		h.writeError(w, r, err, "Failed to update college")
		return
	}
	h.writeJSON(w, http.StatusOK, college)
}

func (h *Handler) HandleUpdateCollegeWithUpload(w http.ResponseWriter, r *http.Request) {
	form, err := request.ParseCollegeForm(r)
	if err != nil {
		h.writeBadBody(w, err)
		return
	}

	college, err := h.colleges.UpdateWithUpload(r.Context(), chi.URLParam(r, CollegeParam), form.Document, form.Image)
	if err != nil {
		h.writeError(w, r, err, "Failed to update college")
		return
	}
	h.writeJSON(w, http.StatusOK, college)
}

func (h *Handler) HandleDeleteCollege(w http.ResponseWriter, r *http.Request) {
	if err := h.colleges.Delete(r.Context(), chi.URLParam(r, CollegeParam)); err != nil {
		h.writeError(w, r, err, "Failed to delete college")
		return
	}
	h.writeJSON(w, http.StatusOK, response.MessageResponse{Message: "College deleted"})
}
