package handlers

import (
	"net/http"

	"github.com/diagnosis/staybook/internal/http/middleware"
	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
)

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.auth.Register(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusCreated, a)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.auth.Login(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *Handlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req, middleware.ClientIP(r)); err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusAccepted, map[string]string{
		"message": "If the email is registered, a reset link is on its way.",
	})
}

func (h *Handlers) RedeemToken(w http.ResponseWriter, r *http.Request) {
	var req domain.RedeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.auth.RedeemToken(r.Context(), req, middleware.ClientIP(r))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}
