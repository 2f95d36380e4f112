package handlers

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/storage"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/service"
)

// maxPhotosPerRequest caps the files accepted in one multipart upload.
const maxPhotosPerRequest = 10

func (h *Handlers) ListRoomTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.ListRoomTypes(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	if types == nil {
		types = []domain.RoomType{}
	}
	response.JSON(w, http.StatusOK, types)
}

func (h *Handlers) GetRoomType(w http.ResponseWriter, r *http.Request) {
	rt, err := h.catalog.GetRoomType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, rt)
}

func (h *Handlers) RoomTypeCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := h.availability.TypeCalendar(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("month"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, cal)
}

// parseRoomTypeForm reads a multipart room type form. Files under "photos"
// stay open until the returned cleanup runs.
func parseRoomTypeForm(w http.ResponseWriter, r *http.Request) (domain.RoomTypeInput, []service.Upload, func(), bool) {
	var in domain.RoomTypeInput
	noop := func() {}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotosPerRequest*storage.MaxPhotoBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		response.BadRequest(w, "Invalid multipart form")
		return in, nil, noop, false
	}

	in.ID = r.FormValue("id")
	in.Name = r.FormValue("name")
	if raw := strings.TrimSpace(r.FormValue("price")); raw != "" {
		price, err := domain.ParseMoney(raw)
		if err != nil {
			response.FromError(r.Context(), w, apperr.Validation(map[string]string{"price": "must be a number"}))
			return in, nil, noop, false
		}
		in.Price = price
	}

	uploads, cleanup, ok := openUploads(w, r.MultipartForm.File["photos"])
	return in, uploads, cleanup, ok
}

func openUploads(w http.ResponseWriter, headers []*multipart.FileHeader) ([]service.Upload, func(), bool) {
	if len(headers) > maxPhotosPerRequest {
		response.BadRequest(w, "Too many photos in one request")
		return nil, func() {}, false
	}

	var files []multipart.File
	cleanup := func() {
		for _, f := range files {
			f.Close()
		}
	}

	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > storage.MaxPhotoBytes {
			cleanup()
			response.BadRequest(w, fh.Filename+": photo exceeds size limit")
			return nil, func() {}, false
		}
		f, err := fh.Open()
		if err != nil {
			cleanup()
			response.BadRequest(w, "Could not read uploaded photo")
			return nil, func() {}, false
		}
		files = append(files, f)
		uploads = append(uploads, service.Upload{Name: fh.Filename, Body: f})
	}
	return uploads, cleanup, true
}

func (h *Handlers) CreateRoomType(w http.ResponseWriter, r *http.Request) {
	in, photos, cleanup, ok := parseRoomTypeForm(w, r)
	defer cleanup()
	if !ok {
		return
	}

	rt, err := h.catalog.CreateRoomType(r.Context(), in, photos)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, rt)
}

func (h *Handlers) UpdateRoomType(w http.ResponseWriter, r *http.Request) {
	in, photos, cleanup, ok := parseRoomTypeForm(w, r)
	defer cleanup()
	if !ok {
		return
	}

	rt, err := h.catalog.UpdateRoomType(r.Context(), chi.URLParam(r, "id"), in, photos)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, rt)
}

// AddRoomTypePhotos appends gallery photos without touching name or price.
func (h *Handlers) AddRoomTypePhotos(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotosPerRequest*storage.MaxPhotoBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		response.BadRequest(w, "Invalid multipart form")
		return
	}
	photos, cleanup, ok := openUploads(w, r.MultipartForm.File["photos"])
	defer cleanup()
	if !ok {
		return
	}
	if len(photos) == 0 {
		response.BadRequest(w, "No photos uploaded")
		return
	}

	current, err := h.catalog.GetRoomType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	in := domain.RoomTypeInput{Name: current.Name, Price: current.Price}
	rt, err := h.catalog.UpdateRoomType(r.Context(), current.ID, in, photos)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, rt)
}

func (h *Handlers) DeleteRoomTypePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteGalleryPhoto(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "file")); err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.catalog.ListRooms(r.Context(), r.URL.Query().Get("room_type_id"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	response.JSON(w, http.StatusOK, rooms)
}

func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.catalog.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, room)
}

type updateRoomReq struct {
	RoomTypeID string `json:"room_type_id"`
}

func (h *Handlers) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	var req updateRoomReq
	if !decodeJSON(w, r, &req) {
		return
	}
	room, err := h.catalog.UpdateRoom(r.Context(), chi.URLParam(r, "id"), req.RoomTypeID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, room)
}

func (h *Handlers) ToggleRoomActive(w http.ResponseWriter, r *http.Request) {
	room, err := h.catalog.ToggleRoomActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, room)
}

func (h *Handlers) RoomCalendar(w http.ResponseWriter, r *http.Request) {
	cal, err := h.availability.RoomCalendar(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("month"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, cal)
}

func (h *Handlers) RoomsCalendar(w http.ResponseWriter, r *http.Request) {
	grid, err := h.availability.RoomsCalendar(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, grid)
}

type batchAddReq struct {
	RoomTypeID string `json:"room_type_id"`
	Count      int    `json:"count"`
}

func (h *Handlers) BatchAddRooms(w http.ResponseWriter, r *http.Request) {
	var req batchAddReq
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.catalog.BatchAddRooms(r.Context(), req.RoomTypeID, req.Count)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, res)
}

type batchUpdateReq struct {
	IDs        []string `json:"ids"`
	RoomTypeID string   `json:"room_type_id"`
}

func (h *Handlers) BatchUpdateRooms(w http.ResponseWriter, r *http.Request) {
	var req batchUpdateReq
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.catalog.BatchUpdateRoomType(r.Context(), req.IDs, req.RoomTypeID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

type batchActiveReq struct {
	IDs    []string `json:"ids"`
	Active *bool    `json:"active"`
}

func (h *Handlers) BatchSetRoomsActive(w http.ResponseWriter, r *http.Request) {
	var req batchActiveReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		response.BadRequest(w, "active is required")
		return
	}
	res, err := h.catalog.BatchSetRoomsActive(r.Context(), req.IDs, *req.Active)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}
