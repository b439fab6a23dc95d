package handler

import (
	"encoding/json"
	"net/http"

	"moltbattle/internal/api/middleware"
	"moltbattle/internal/app/service"
	"moltbattle/internal/common"

	"github.com/go-chi/chi/v5"
)

type CombatHandler struct {
	combatService *service.CombatService
}

func NewCombatHandler(combatService *service.CombatService) *CombatHandler {
	return &CombatHandler{combatService: combatService}
}

// RegisterRoutes wires the authenticated combat surface. Status and result
// are registered separately as public reads.
func (h *CombatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Post("/open/join", h.joinOpen)
	r.Post("/{code}/accept", h.accept)
	r.Post("/{code}/keys", h.issueKeys)
	r.Post("/{code}/ready", h.markReady)
	r.Get("/{code}/key", h.retrieveKey)
}

func (h *CombatHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/{code}", h.status)
	r.Get("/{code}/result", h.result)
}

func (h *CombatHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req service.CreateCombatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	resp, err := h.combatService.Create(r.Context(), userID, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}

func (h *CombatHandler) accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	resp, err := h.combatService.Accept(r.Context(), userID, chi.URLParam(r, "code"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *CombatHandler) issueKeys(w http.ResponseWriter, r *http.Request) {
	resp, err := h.combatService.IssueKeys(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *CombatHandler) markReady(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	resp, err := h.combatService.MarkReady(r.Context(), userID, chi.URLParam(r, "code"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *CombatHandler) joinOpen(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	resp, err := h.combatService.JoinOpen(r.Context(), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *CombatHandler) retrieveKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	key, err := h.combatService.RetrieveKey(r.Context(), userID, chi.URLParam(r, "code"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"combat_key": key})
}

func (h *CombatHandler) status(w http.ResponseWriter, r *http.Request) {
	resp, err := h.combatService.Status(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *CombatHandler) result(w http.ResponseWriter, r *http.Request) {
	resp, err := h.combatService.Result(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}
