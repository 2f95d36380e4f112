package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/pkg/auth"
	"github.com/diagnosis/staybook/services/accounts/internal/service"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	auth    service.AuthService
	profile service.ProfileService
	admin   service.AdminService
}

func New(authSvc service.AuthService, profile service.ProfileService, admin service.AdminService) *Handlers {
	return &Handlers{auth: authSvc, profile: profile, admin: admin}
}

// Mount registers the account routes. limit guards the anonymous credential
// endpoints.
func (h *Handlers) Mount(r chi.Router, jwtSecret string, limit func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/password-reset", h.RequestPasswordReset)
		r.Post("/password-reset/redeem", h.RedeemToken)
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(auth.Require(jwtSecret))
		r.Get("/", h.GetProfile)
		r.Patch("/", h.UpdateProfile)
		r.Post("/password", h.UpdatePassword)
		r.Post("/photo", h.StagePhoto)
	})

	r.Route("/admin/accounts", func(r chi.Router) {
		r.Use(auth.Require(jwtSecret, auth.RoleAdmin))
		r.Get("/", h.ListAccounts)
		r.Post("/admins", h.AddAdmin)
		r.Get("/{id}", h.GetAccount)
		r.Post("/{id}/toggle-active", h.ToggleAccountActive)
	})
}

func subject(r *http.Request) int64 {
	if c := auth.ClaimsFrom(r.Context()); c != nil {
		return c.Sub
	}
	return 0
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			response.BadRequest(w, "Request body is required")
			return false
		}
		response.BadRequest(w, "Invalid JSON format")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid id")
		return 0, false
	}
	return id, true
}
