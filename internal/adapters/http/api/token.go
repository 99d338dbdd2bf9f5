package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/mudra/internal/gateway"
)

// TokenHandler issues single-use run tokens.
type TokenHandler struct {
	deps Dependencies
}

// NewTokenHandler creates a new token handler.
func NewTokenHandler(deps Dependencies) *TokenHandler {
	return &TokenHandler{deps: deps}
}

type tokenRequest struct {
	Username   string `json:"username"`
	ExternalID string `json:"external_id"`
	Mode       string `json:"mode"`
}

func (t tokenRequest) validate() error {
	if strings.TrimSpace(t.Username) == "" && strings.TrimSpace(t.ExternalID) == "" {
		return ErrBadRequest
	}
	return nil
}

// HandleIssueToken handles POST /run/token requests.
func (h *TokenHandler) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodAllowed)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", ErrBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err)
		return
	}

	resp := h.deps.IssueRunToken(r.Context(), gateway.IssueTokenRequest{
		Identity: gateway.Identity{Username: req.Username, ExternalID: req.ExternalID},
		Mode:     req.Mode,
	})
	writeResult(w, resp.Result, resp)
}
