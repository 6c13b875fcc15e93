package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

type chatQueryRequest struct {
	Question    string   `json:"question"`
	Category    string   `json:"category"`
	DocumentIDs []string `json:"document_ids"`
}

func (rt *Router) chatQuery(w http.ResponseWriter, r *http.Request) {
	var req chatQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeErrorMessage(w, r, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := rt.services.Chat.Answer(r.Context(), domain.ChatRequest{
		Question: req.Question,
		Filter: domain.SearchFilter{
			Category:    strings.TrimSpace(req.Category),
			DocumentIDs: req.DocumentIDs,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
