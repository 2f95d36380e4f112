package handlers

import (
	"net/http"

	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	var req domain.ReserveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.reservations.Reserve(r.Context(), actor(r).ID, req)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, res)
}

func (h *Handlers) ListMyReservations(w http.ResponseWriter, r *http.Request) {
	list, err := h.reservations.ListMine(r.Context(), actor(r).ID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.reservations.Get(r.Context(), actor(r), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	active, ok := queryBool(r, "active")
	if !ok {
		response.BadRequest(w, "Invalid active parameter")
		return
	}
	paid, ok := queryBool(r, "paid")
	if !ok {
		response.BadRequest(w, "Invalid paid parameter")
		return
	}

	filter := domain.ReservationFilter{Active: active, Paid: paid, Member: r.URL.Query().Get("member")}
	if filter.From, ok = queryDate(r, "from"); !ok {
		response.BadRequest(w, "Invalid from parameter")
		return
	}
	if filter.To, ok = queryDate(r, "to"); !ok {
		response.BadRequest(w, "Invalid to parameter")
		return
	}

	list, err := h.reservations.List(r.Context(), filter)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *Handlers) ToggleReservationActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	res, err := h.reservations.ToggleActive(r.Context(), actor(r), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}
