package opa

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	httpadapter "billpay-processing-system/internal/adapters/http"
)

// Middleware authorizes requests against an Open Policy Agent instance.
type Middleware struct {
	opaURL string
	logger *slog.Logger
	client *http.Client
}

// NewMiddleware creates a new OPA middleware. opaURL points at the policy
// document, e.g. http://opa:8181/v1/data/billpay/authz.
func NewMiddleware(opaURL string, logger *slog.Logger) *Middleware {
	return &Middleware{
		opaURL: opaURL,
		logger: logger,
		client: &http.Client{Timeout: 500 * time.Millisecond},
	}
}

// OPAInput is the document sent to OPA for evaluation.
type OPAInput struct {
	Method string                 `json:"method"`
	Path   string                 `json:"path"`
	User   map[string]interface{} `json:"user"`
}

// OPAResponse is the decision returned by OPA.
type OPAResponse struct {
	Allow bool `json:"allow"`
}

// Authorize is an HTTP middleware that performs permissions checking. It
// must run behind the JWT middleware so verified claims are available.
func (m *Middleware) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := httpadapter.ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, "Claims not found in context", http.StatusInternalServerError)
			return
		}

		input := OPAInput{
			Method: r.Method,
			Path:   r.URL.Path,
			User:   claims,
		}

		inputBytes, err := json.Marshal(map[string]interface{}{"input": input})
		if err != nil {
			m.logger.Error("Failed to create OPA request", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), "POST", m.opaURL, bytes.NewBuffer(inputBytes))
		if err != nil {
			m.logger.Error("Failed to create OPA request", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.client.Do(req)
		if err != nil {
			m.logger.Error("error accessing OPA", "error", err)
			http.Error(w, "Authorization service unavailable", http.StatusServiceUnavailable)
			return
		}
		defer resp.Body.Close()

		var opaResp OPAResponse
		if err := json.NewDecoder(resp.Body).Decode(&opaResp); err != nil {
			m.logger.Error("Failed to decode response from OPA", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if !opaResp.Allow {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
