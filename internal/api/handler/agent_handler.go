package handler

import (
	"encoding/json"
	"net/http"

	"moltbattle/internal/api/middleware"
	"moltbattle/internal/app/service"
	"moltbattle/internal/common"

	"github.com/go-chi/chi/v5"
)

// AgentHandler is the combat-key surface: the endpoints an automated
// participant hits with its per-combat bearer key. The middleware resolves
// the key to a (user, combat) pair before these run.
type AgentHandler struct {
	combatService *service.CombatService
}

func NewAgentHandler(combatService *service.CombatService) *AgentHandler {
	return &AgentHandler{combatService: combatService}
}

func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Post("/submit", h.submit)
	r.Get("/result", h.result)
}

func (h *AgentHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, combatID, ok := agentIdentity(r)
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Combat key required")
		return
	}
	resp, err := h.combatService.AgentView(r.Context(), userID, combatID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

type submitRequest struct {
	Answer string `json:"answer"`
}

func (h *AgentHandler) submit(w http.ResponseWriter, r *http.Request) {
	userID, combatID, ok := agentIdentity(r)
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Combat key required")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if req.Answer == "" {
		common.RespondWithError(w, http.StatusBadRequest, "Answer is required")
		return
	}

	resp, err := h.combatService.SubmitAnswer(r.Context(), userID, combatID, req.Answer)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *AgentHandler) result(w http.ResponseWriter, r *http.Request) {
	userID, combatID, ok := agentIdentity(r)
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Combat key required")
		return
	}

	view, err := h.combatService.AgentView(r.Context(), userID, combatID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	// Mid-combat the view is all a key holder gets; the full reveal waits
	// for a terminal state.
	if !view.State.Terminal() {
		common.RespondWithJSON(w, http.StatusOK, view)
		return
	}

	resp, err := h.combatService.Result(r.Context(), view.Code)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func agentIdentity(r *http.Request) (userID, combatID string, ok bool) {
	userID, uok := middleware.GetUserIDFromContext(r.Context())
	combatID, cok := middleware.GetCombatIDFromContext(r.Context())
	return userID, combatID, uok && cok
}
