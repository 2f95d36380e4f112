package handlers

import (
	"net/http"

	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
)

func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.admin.List(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	if list == nil {
		list = []domain.Account{}
	}
	response.JSON(w, http.StatusOK, list)
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.admin.Get(r.Context(), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}

func (h *Handlers) AddAdmin(w http.ResponseWriter, r *http.Request) {
	var req domain.AddAdminRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.admin.AddAdmin(r.Context(), req)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, a)
}

func (h *Handlers) ToggleAccountActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := h.admin.ToggleActive(r.Context(), subject(r), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}
