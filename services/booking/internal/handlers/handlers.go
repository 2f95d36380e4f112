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
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/service"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type Handlers struct {
	catalog      service.CatalogService
	availability service.AvailabilityService
	reservations service.ReservationService
	payments     service.PaymentService
	refunds      service.RefundService
	reviews      service.ReviewService
	reports      service.ReportService
}

type Services struct {
	Catalog      service.CatalogService
	Availability service.AvailabilityService
	Reservations service.ReservationService
	Payments     service.PaymentService
	Refunds      service.RefundService
	Reviews      service.ReviewService
	Reports      service.ReportService
}

func New(s Services) *Handlers {
	return &Handlers{
		catalog:      s.Catalog,
		availability: s.Availability,
		reservations: s.Reservations,
		payments:     s.Payments,
		refunds:      s.Refunds,
		reviews:      s.Reviews,
		reports:      s.Reports,
	}
}

// actor builds the service caller from the verified token claims.
func actor(r *http.Request) service.Actor {
	c := auth.ClaimsFrom(r.Context())
	if c == nil {
		return service.Actor{}
	}
	return service.Actor{ID: c.Sub, Admin: c.IsAdmin()}
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

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// queryBool reads an optional true/false filter.
// queryDate returns the zero Date when key is absent.
func queryDate(r *http.Request, key string) (domain.Date, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return domain.Date{}, true
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return domain.Date{}, false
	}
	return d, true
}

func queryBool(r *http.Request, key string) (*bool, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &v, true
}
