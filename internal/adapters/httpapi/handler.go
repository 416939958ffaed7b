package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"recap-board/internal/domain"
	httpinfra "recap-board/internal/infra/http"
	"recap-board/internal/usecase/recap"
)

// RecapService контракт конвейера рекапов, нужный HTTP-слою.
type RecapService interface {
	Ingest(ctx context.Context, ownerID int64, req recap.IngestRequest) (domain.Day, error)
	GetDay(ctx context.Context, ownerID int64, date string) (domain.Day, error)
	ListDays(ctx context.Context, ownerID int64, from, to string) ([]domain.Day, error)
	DeleteDay(ctx context.Context, ownerID int64, date string) error
}

// GoalService контракт сервиса целей.
type GoalService interface {
	List(ctx context.Context, ownerID int64) ([]domain.Goal, error)
	Create(ctx context.Context, ownerID int64, text string) (domain.Goal, error)
	Update(ctx context.Context, ownerID, goalID int64, text *string, done *bool) (domain.Goal, error)
	Delete(ctx context.Context, ownerID, goalID int64) error
	Reorder(ctx context.Context, ownerID int64, orderedIDs []int64) error
}

// Handler связывает REST-маршруты с usecase-сервисами.
type Handler struct {
	recaps RecapService
	goals  GoalService
	prefs  domain.PrefsRepo
	log    zerolog.Logger
}

// NewHandler создаёт HTTP-обработчик.
func NewHandler(recaps RecapService, goals GoalService, prefs domain.PrefsRepo, logger zerolog.Logger) *Handler {
	return &Handler{recaps: recaps, goals: goals, prefs: prefs, log: logger}
}

// Register вешает маршруты на защищённый роутер.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/v1/recap", h.ingestRecap)
	r.Get("/api/v1/days", h.listDays)
	r.Get("/api/v1/days/{date}", h.getDay)
	r.Delete("/api/v1/days/{date}", h.deleteDay)

	r.Get("/api/v1/goals", h.listGoals)
	r.Post("/api/v1/goals", h.createGoal)
	r.Patch("/api/v1/goals/{id}", h.updateGoal)
	r.Delete("/api/v1/goals/{id}", h.deleteGoal)
	r.Post("/api/v1/goals/reorder", h.reorderGoals)

	r.Get("/api/v1/prefs/pinned", h.getPinned)
	r.Put("/api/v1/prefs/pinned", h.setPinned)
}

type ingestRequest struct {
	Date         string `json:"date"`
	Transcript   string `json:"transcript"`
	NowLocalTime string `json:"nowLocalTime,omitempty"`
}

type eventDTO struct {
	ID        int64  `json:"id,omitempty"`
	Label     string `json:"label"`
	Category  string `json:"category"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Notes     string `json:"notes,omitempty"`
}

type metricsDTO struct {
	ProductiveHours float64 `json:"productiveHours"`
	NeutralHours    float64 `json:"neutralHours"`
	WastedHours     float64 `json:"wastedHours"`
	SleepHours      float64 `json:"sleepHours"`
	FocusBlocks     int     `json:"focusBlocks"`
	ContextSwitches int     `json:"contextSwitches"`
}

type dayResponse struct {
	DayID       int64      `json:"dayId"`
	Date        string     `json:"date"`
	Events      []eventDTO `json:"events"`
	Summary     string     `json:"summary"`
	Metrics     metricsDTO `json:"metrics"`
	Suggestions []string   `json:"suggestions"`
	Transcript  []string   `json:"transcript"`
}

func toDayResponse(day domain.Day) dayResponse {
	resp := dayResponse{
		DayID:   day.ID,
		Date:    day.Date,
		Events:  make([]eventDTO, 0, len(day.Events)),
		Summary: day.Summary,
		Metrics: metricsDTO{
			ProductiveHours: day.Metrics.ProductiveHours,
			NeutralHours:    day.Metrics.NeutralHours,
			WastedHours:     day.Metrics.WastedHours,
			SleepHours:      day.Metrics.SleepHours,
			FocusBlocks:     day.Metrics.FocusBlocks,
			ContextSwitches: day.Metrics.ContextSwitches,
		},
		Suggestions: day.Suggestions,
		Transcript:  day.Transcripts,
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []string{}
	}
	if resp.Transcript == nil {
		resp.Transcript = []string{}
	}
	for _, ev := range day.Events {
		resp.Events = append(resp.Events, eventDTO{
			ID:        ev.ID,
			Label:     ev.Label,
			Category:  string(ev.Category),
			StartTime: ev.StartTime,
			EndTime:   ev.EndTime,
			Notes:     ev.Notes,
		})
	}
	return resp
}

func (h *Handler) ingestRecap(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := httpinfra.OwnerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "нет владельца в контексте", "")
		return
	}
	defer r.Body.Close()
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса", err.Error())
		return
	}
	day, err := h.recaps.Ingest(r.Context(), ownerID, recap.IngestRequest{
		Date:         req.Date,
		Transcript:   req.Transcript,
		NowLocalTime: req.NowLocalTime,
	})
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayResponse(day))
}

func (h *Handler) getDay(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	day, err := h.recaps.GetDay(r.Context(), ownerID, chi.URLParam(r, "date"))
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayResponse(day))
}

func (h *Handler) listDays(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	days, err := h.recaps.ListDays(r.Context(), ownerID, from, to)
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	out := make([]dayResponse, 0, len(days))
	for _, day := range days {
		out = append(out, toDayResponse(day))
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": out})
}

func (h *Handler) deleteDay(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	if err := h.recaps.DeleteDay(r.Context(), ownerID, chi.URLParam(r, "date")); err != nil {
		h.respondFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type goalDTO struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	SortOrder int    `json:"sortOrder"`
	CreatedAt string `json:"createdAt"`
}

func toGoalDTO(g domain.Goal) goalDTO {
	return goalDTO{
		ID:        g.ID,
		Text:      g.Text,
		Done:      g.Done,
		SortOrder: g.SortOrder,
		CreatedAt: g.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) listGoals(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	goals, err := h.goals.List(r.Context(), ownerID)
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	out := make([]goalDTO, 0, len(goals))
	for _, g := range goals {
		out = append(out, toGoalDTO(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": out})
}

func (h *Handler) createGoal(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	defer r.Body.Close()
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса", err.Error())
		return
	}
	goal, err := h.goals.Create(r.Context(), ownerID, req.Text)
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGoalDTO(goal))
}

func (h *Handler) updateGoal(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	goalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный id цели", "")
		return
	}
	defer r.Body.Close()
	var req struct {
		Text *string `json:"text"`
		Done *bool   `json:"done"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса", err.Error())
		return
	}
	goal, err := h.goals.Update(r.Context(), ownerID, goalID, req.Text, req.Done)
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalDTO(goal))
}

func (h *Handler) deleteGoal(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	goalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный id цели", "")
		return
	}
	if err := h.goals.Delete(r.Context(), ownerID, goalID); err != nil {
		h.respondFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reorderGoals(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	defer r.Body.Close()
	var req struct {
		Order []int64 `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса", err.Error())
		return
	}
	if err := h.goals.Reorder(r.Context(), ownerID, req.Order); err != nil {
		h.respondFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) getPinned(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	pinned, err := h.prefs.GetPinnedMetrics(r.Context(), ownerID)
	if err != nil {
		h.respondFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pinned": pinned})
}

func (h *Handler) setPinned(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := httpinfra.OwnerFromContext(r.Context())
	defer r.Body.Close()
	var req struct {
		Pinned []string `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "некорректное тело запроса", err.Error())
		return
	}
	if err := h.prefs.SetPinnedMetrics(r.Context(), ownerID, req.Pinned); err != nil {
		h.respondFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pinned": req.Pinned})
}

// respondFault переводит категорию ошибки в HTTP-статус.
func (h *Handler) respondFault(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= 500 {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("api: внутренняя ошибка")
	} else {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("api: ошибка запроса")
	}
	var f *domain.Fault
	message := "внутренняя ошибка"
	details := ""
	if errors.As(err, &f) {
		message = f.Message
		if f.Err != nil {
			details = f.Err.Error()
		}
	}
	writeError(w, status, message, details)
}

func statusForKind(kind domain.FaultKind) int {
	switch kind {
	case domain.FaultValidation:
		return http.StatusBadRequest
	case domain.FaultNotFound:
		return http.StatusNotFound
	case domain.FaultUpstream:
		return http.StatusBadGateway
	case domain.FaultBusy:
		return http.StatusConflict
	case domain.FaultPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}
