package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

func writeReviews(w http.ResponseWriter, list []domain.Review) {
	if list == nil {
		list = []domain.Review{}
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *Handlers) AddReview(w http.ResponseWriter, r *http.Request) {
	var in domain.ReviewInput
	if !decodeJSON(w, r, &in) {
		return
	}
	rv, err := h.reviews.Add(r.Context(), actor(r).ID, in)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, rv)
}

func (h *Handlers) UpdateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in domain.ReviewInput
	if !decodeJSON(w, r, &in) {
		return
	}
	rv, err := h.reviews.Update(r.Context(), actor(r).ID, id, in)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, rv)
}

func (h *Handlers) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.reviews.Delete(r.Context(), actor(r), id); err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListRoomTypeReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.reviews.ListByRoomType(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	writeReviews(w, list)
}

func (h *Handlers) ListReservationReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.reviews.ListByReservation(r.Context(), actor(r), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	writeReviews(w, list)
}

func (h *Handlers) ListAllReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.reviews.ListAll(r.Context())
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	writeReviews(w, list)
}
