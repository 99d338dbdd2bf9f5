package api

import (
	"encoding/json"
	"net/http"

	"github.com/okian/mudra/internal/gateway"
)

// QuestHandler serves quest state and progress updates. Identity comes from
// the verified-session headers, never from the request body alone.
type QuestHandler struct {
	deps Dependencies
}

// NewQuestHandler creates a new quest handler.
func NewQuestHandler(deps Dependencies) *QuestHandler {
	return &QuestHandler{deps: deps}
}

// HandleGetQuest handles GET /quest requests.
func (h *QuestHandler) HandleGetQuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodAllowed)
		return
	}

	resp := h.deps.GetQuest(r.Context(), gateway.QuestRequest{
		Session:  sessionFromRequest(r),
		Username: r.URL.Query().Get("username"),
	})
	writeResult(w, resp.Result, resp)
}

type progressRequest struct {
	Username    string `json:"username"`
	DailyDelta  int    `json:"daily_delta"`
	WeeklyDelta int    `json:"weekly_delta"`
}

// HandleProgress handles POST /quest/progress requests.
func (h *QuestHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", ErrMethodAllowed)
		return
	}

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", ErrBadRequest)
		return
	}

	resp := h.deps.UpdateQuestProgress(r.Context(), gateway.QuestProgressRequest{
		Session:     sessionFromRequest(r),
		Username:    req.Username,
		DailyDelta:  req.DailyDelta,
		WeeklyDelta: req.WeeklyDelta,
	})
	writeResult(w, resp.Result, resp)
}
