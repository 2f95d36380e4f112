package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/staybook/internal/http/response"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/services/gateway/internal/proxy"
)

const apiPrefix = "/v1"

type Handlers struct {
	accounts *proxy.ServiceProxy
	booking  *proxy.ServiceProxy
}

func New(accounts, booking *proxy.ServiceProxy) *Handlers {
	return &Handlers{accounts: accounts, booking: booking}
}

// Mount routes /v1 traffic. Account and credential paths go to the accounts
// service; everything else belongs to booking. Authorization is enforced by
// the services themselves.
func (h *Handlers) Mount(r chi.Router) {
	r.Route(apiPrefix, func(r chi.Router) {
		toAccounts := h.forward(h.accounts)
		r.Handle("/auth/*", toAccounts)
		r.Handle("/me", toAccounts)
		r.Handle("/me/*", toAccounts)
		r.Handle("/admin/accounts", toAccounts)
		r.Handle("/admin/accounts/*", toAccounts)

		r.Handle("/*", h.forward(h.booking))
	})
}

func (h *Handlers) forward(target *proxy.ServiceProxy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, apiPrefix)
		if path == "" {
			path = "/"
		}
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		var body io.Reader
		if r.Body != nil && r.Body != http.NoBody {
			body = r.Body
		}

		resp, err := target.Do(r.Context(), r.Method, path, body, r.Header)
		if err != nil {
			logger.ErrorContext(r.Context(), "Service proxy error", "service", target.Name(), "path", path, "error", err)
			response.WriteError(w, http.StatusServiceUnavailable, "Service unavailable", "SERVICE_UNAVAILABLE")
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			if !proxy.ShouldCopyHeader(key) {
				continue
			}
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		w.WriteHeader(resp.StatusCode)

		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err)
		}
	}
}
