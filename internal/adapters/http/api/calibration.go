package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/mudra/internal/domain/calibrate"
	"github.com/okian/mudra/internal/gateway"
)

// CalibrationHandler stores and serves per-user calibration profiles.
type CalibrationHandler struct {
	deps Dependencies
}

// NewCalibrationHandler creates a new calibration handler.
func NewCalibrationHandler(deps Dependencies) *CalibrationHandler {
	return &CalibrationHandler{deps: deps}
}

type calibrationRequest struct {
	Username   string            `json:"username"`
	ExternalID string            `json:"external_id"`
	Profile    calibrate.Profile `json:"profile"`
}

type calibrationResponse struct {
	gateway.Result
	Profile calibrate.Profile `json:"profile"`
}

// HandleCalibration handles GET and POST /calibration requests.
func (h *CalibrationHandler) HandleCalibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handleSave(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodAllowed)
	}
}

func (h *CalibrationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := gateway.Identity{
		Username:   r.URL.Query().Get("username"),
		ExternalID: r.URL.Query().Get("external_id"),
	}
	profile, res := h.deps.GetCalibration(r.Context(), id)
	writeResult(w, res, calibrationResponse{Result: res, Profile: profile})
}

func (h *CalibrationHandler) handleSave(w http.ResponseWriter, r *http.Request) {
	var req calibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", ErrBadRequest)
		return
	}

	res := h.deps.SaveCalibration(r.Context(), gateway.CalibrationRequest{
		Identity: gateway.Identity{Username: req.Username, ExternalID: req.ExternalID},
		Profile:  req.Profile,
	})
	writeResult(w, res, res)
}
