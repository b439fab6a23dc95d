package handler

import (
	"net/http"
	"strconv"

	"moltbattle/internal/app/service"
	"moltbattle/internal/common"
	"moltbattle/internal/domain/repository"

	"github.com/go-chi/chi/v5"
)

// AdminHandler is the operations surface: fallback pool inspection and
// combat listings. Mounted behind the admin middleware.
type AdminHandler struct {
	combatService   *service.CombatService
	questionService *service.QuestionService
	questionRepo    repository.QuestionRepository
}

func NewAdminHandler(
	combatService *service.CombatService,
	questionService *service.QuestionService,
	questionRepo repository.QuestionRepository,
) *AdminHandler {
	return &AdminHandler{
		combatService:   combatService,
		questionService: questionService,
		questionRepo:    questionRepo,
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/questions", h.listQuestions)
	r.Post("/questions/seed", h.seedQuestions)
	r.Get("/combats", h.listCombats)
	r.Get("/combats/{id}", h.combatDetail)
}

func (h *AdminHandler) listQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.questionRepo.ListFallback(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{
		"count":     len(questions),
		"questions": questions,
	})
}

func (h *AdminHandler) seedQuestions(w http.ResponseWriter, r *http.Request) {
	inserted, err := h.questionService.SeedFallbackPool(r.Context())
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]int{"inserted": inserted})
}

func (h *AdminHandler) combatDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.combatService.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, detail)
}

func (h *AdminHandler) listCombats(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	combats, err := h.combatService.ListCombats(r.Context(), limit, offset)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{
		"count":   len(combats),
		"combats": combats,
	})
}
