// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/okian/mudra/internal/domain/calibrate"
	"github.com/okian/mudra/internal/gateway"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IssueRunToken(ctx context.Context, req gateway.IssueTokenRequest) gateway.IssueTokenResponse
	SubmitRun(ctx context.Context, req gateway.SubmitRunRequest) gateway.SubmitRunResponse
	GetQuest(ctx context.Context, req gateway.QuestRequest) gateway.QuestResponse
	UpdateQuestProgress(ctx context.Context, req gateway.QuestProgressRequest) gateway.QuestResponse
	SaveCalibration(ctx context.Context, req gateway.CalibrationRequest) gateway.Result
	GetCalibration(ctx context.Context, id gateway.Identity) (calibrate.Profile, gateway.Result)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	tokenHandler       *TokenHandler
	submitHandler      *SubmitHandler
	questHandler       *QuestHandler
	calibrationHandler *CalibrationHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		tokenHandler:       NewTokenHandler(deps),
		submitHandler:      NewSubmitHandler(deps),
		questHandler:       NewQuestHandler(deps),
		calibrationHandler: NewCalibrationHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/run/token", MetricsMiddleware(s.tokenHandler.HandleIssueToken, "run_token"))
	mux.HandleFunc("/run/submit", MetricsMiddleware(s.submitHandler.HandleSubmit, "run_submit"))
	mux.HandleFunc("/quest", MetricsMiddleware(s.questHandler.HandleGetQuest, "quest"))
	mux.HandleFunc("/quest/progress", MetricsMiddleware(s.questHandler.HandleProgress, "quest_progress"))
	mux.HandleFunc("/calibration", MetricsMiddleware(s.calibrationHandler.HandleCalibration, "calibration"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeResult renders a gateway result with the HTTP status its reason maps
// to. Rate-limited rejections carry a Retry-After header.
func writeResult(w http.ResponseWriter, res gateway.Result, body any) {
	status := statusFor(res.Reason)
	if res.Reason == gateway.ReasonRateLimited && res.RetrySeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(res.RetrySeconds))
	}
	writeJSON(w, status, body)
}

// statusFor maps gateway reason codes onto HTTP statuses.
func statusFor(reason gateway.Reason) int {
	switch reason {
	case gateway.ReasonOK:
		return http.StatusOK
	case gateway.ReasonMissingIdentity, gateway.ReasonTokenMissing:
		return http.StatusBadRequest
	case gateway.ReasonUnknownProfile:
		return http.StatusNotFound
	case gateway.ReasonIdentityMismatch,
		gateway.ReasonSessionIdentityMismatch,
		gateway.ReasonTokenUsernameMismatch:
		return http.StatusForbidden
	case gateway.ReasonTokenAlreadyUsed:
		return http.StatusConflict
	case gateway.ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// sessionFromRequest reads the verified-session headers set by the fronting
// auth layer. Empty values make the gateway reject with missing_identity.
func sessionFromRequest(r *http.Request) gateway.VerifiedSession {
	return gateway.VerifiedSession{
		SessionID:  r.Header.Get("X-Session-Id"),
		ProviderID: r.Header.Get("X-Provider-Id"),
	}
}
