package handlers

import (
	"net/http"

	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/pkg/storage"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
	"github.com/diagnosis/staybook/services/accounts/internal/service"
)

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	a, err := h.profile.Get(r.Context(), subject(r))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.profile.Update(r.Context(), subject(r), req)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}

func (h *Handlers) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.profile.UpdatePassword(r.Context(), subject(r), req); err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StagePhoto accepts a single multipart file under "photo" and answers with
// the key to pass as photo_key on PATCH /me.
func (h *Handlers) StagePhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxPhotoBytes+maxBodyBytes)
	file, header, err := r.FormFile("photo")
	if err != nil {
		response.BadRequest(w, "A photo file is required")
		return
	}
	defer file.Close()

	key, err := h.profile.StagePhoto(r.Context(), subject(r), service.Upload{Name: header.Filename, Body: file})
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]string{"photo_key": key})
}
