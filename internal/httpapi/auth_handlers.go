package httpapi

import (
	"net/http"
	"strings"
	"time"

	"guildhall.org/internal/audit"
)

type tokenRequest struct {
	Principal string `json:"principal"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Principal string    `json:"principal"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleAuthToken mints a token for any principal. Only mounted when token
// issuance is enabled in config.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	principal := strings.TrimSpace(req.Principal)
	if principal == "" {
		writeError(w, r, http.StatusBadRequest, "principal is required")
		return
	}

	token, expiresAt, err := a.issuer.Issue(principal)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"subject":    principal,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		Principal: principal,
		ExpiresAt: expiresAt,
	})
}
