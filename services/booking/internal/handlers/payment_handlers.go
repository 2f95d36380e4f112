package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

type reservationRef struct {
	ReservationID int64 `json:"reservation_id"`
}

func (h *Handlers) readReservationRef(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var req reservationRef
	if !decodeJSON(w, r, &req) {
		return 0, false
	}
	if req.ReservationID <= 0 {
		response.FromError(r.Context(), w, apperr.Validation(map[string]string{"reservation_id": "is required"}))
		return 0, false
	}
	return req.ReservationID, true
}

func (h *Handlers) CreatePayPalOrder(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := h.readReservationRef(w, r)
	if !ok {
		return
	}
	orderID, err := h.payments.CreatePayPalOrder(r.Context(), actor(r), reservationID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]string{"order_id": orderID})
}

func (h *Handlers) CapturePayPalOrder(w http.ResponseWriter, r *http.Request) {
	pay, err := h.payments.CapturePayPalOrder(r.Context(), actor(r), chi.URLParam(r, "orderId"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, pay)
}

func (h *Handlers) GenerateQR(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := h.readReservationRef(w, r)
	if !ok {
		return
	}
	code, err := h.payments.GenerateQR(r.Context(), actor(r), reservationID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, code)
}

func (h *Handlers) ConfirmQR(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := h.readReservationRef(w, r)
	if !ok {
		return
	}
	pay, err := h.payments.ConfirmQR(r.Context(), actor(r), chi.URLParam(r, "correlationId"), reservationID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, pay)
}

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pay, err := h.payments.GetPayment(r.Context(), actor(r), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, pay)
}

func (h *Handlers) QRRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pay, err := h.refunds.QRRefund(r.Context(), actor(r), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, pay)
}

type refundReq struct {
	Amount domain.Money `json:"amount"`
}

func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req refundReq
	if !decodeJSON(w, r, &req) {
		return
	}
	pay, err := h.refunds.Refund(r.Context(), id, req.Amount)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, pay)
}

func (h *Handlers) SalesReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Sales(r.Context())
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, report)
}

func (h *Handlers) StaysReport(w http.ResponseWriter, r *http.Request) {
	day, ok := queryDate(r, "date")
	if !ok {
		response.BadRequest(w, "Invalid date parameter")
		return
	}
	report, err := h.reports.CompletedStays(r.Context(), day)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, report)
}

func (h *Handlers) ListReconciliations(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("all") != "true"
	list, err := h.payments.ListReconciliations(r.Context(), openOnly)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, list)
}

type resolveReq struct {
	Resolution string `json:"resolution"`
}

func (h *Handlers) ResolveReconciliation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req resolveReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.payments.ResolveReconciliation(r.Context(), id, strings.TrimSpace(req.Resolution)); err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
