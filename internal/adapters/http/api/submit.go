package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/mudra/internal/domain/run"
	"github.com/okian/mudra/internal/gateway"
)

// SubmitHandler accepts completed rank runs.
type SubmitHandler struct {
	deps Dependencies
}

// NewSubmitHandler creates a new submit handler.
func NewSubmitHandler(deps Dependencies) *SubmitHandler {
	return &SubmitHandler{deps: deps}
}

type submitRequest struct {
	Username    string       `json:"username"`
	ExternalID  string       `json:"external_id"`
	Token       string       `json:"token"`
	SignsLanded int          `json:"signs_landed"`
	DurationMS  int64        `json:"duration_ms"`
	Envelope    run.Envelope `json:"envelope"`
}

// HandleSubmit handles POST /run/submit requests. Token and identity checks
// live in the gateway; this handler only shapes the wire exchange.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodAllowed)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", ErrBadRequest)
		return
	}

	resp := h.deps.SubmitRun(r.Context(), gateway.SubmitRunRequest{
		Identity:    gateway.Identity{Username: req.Username, ExternalID: req.ExternalID},
		Token:       req.Token,
		SignsLanded: req.SignsLanded,
		DurationMS:  req.DurationMS,
		Envelope:    req.Envelope,
	})
	writeResult(w, resp.Result, resp)
}
