package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"lingua-practice-service/internal/app"
	"lingua-practice-service/internal/domain"
)

// SubmissionsHandler exposes the evaluator-facing REST surface: listing,
// scoring, returning and resubmitting submissions.
type SubmissionsHandler struct {
	service *app.PracticeService
	log     zerolog.Logger
}

func NewSubmissionsHandler(service *app.PracticeService, log zerolog.Logger) *SubmissionsHandler {
	return &SubmissionsHandler{
		service: service,
		log:     log.With().Str("component", "submissions").Logger(),
	}
}

// Register wires the handler's routes onto the mux.
func (h *SubmissionsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /submissions", h.list)
	mux.HandleFunc("GET /submissions/{id}", h.get)
	mux.HandleFunc("DELETE /submissions/{id}", h.delete)
	mux.HandleFunc("POST /submissions/{id}/evaluation", h.evaluate)
	mux.HandleFunc("POST /submissions/{id}/return", h.returnForRevision)
	mux.HandleFunc("POST /submissions/{id}/resubmit", h.resubmit)
}

type evaluationRequest struct {
	Scores      map[domain.Criterion]float64 `json:"scores"`
	Feedback    string                       `json:"feedback"`
	Corrections string                       `json:"corrections"`
	Suggestions string                       `json:"suggestions"`
}

func (h *SubmissionsHandler) list(w http.ResponseWriter, r *http.Request) {
	filter := domain.SubmissionFilter{
		LearnerID: r.URL.Query().Get("learnerId"),
		LessonID:  r.URL.Query().Get("lessonId"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filter.Status = status
	}
	subs, err := h.service.ListSubmissions(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *SubmissionsHandler) get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSubmission(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubmissionsHandler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sub, err := h.service.Evaluate(r.Context(), r.PathValue("id"), req.Scores, req.Feedback, req.Corrections, req.Suggestions)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionsHandler) returnForRevision(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.ReturnSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionsHandler) resubmit(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Resubmit(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubmissionsHandler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		transitionErr *domain.TransitionError
		validationErr *domain.ValidationError
	)
	switch {
	case errors.Is(err, domain.ErrSubmissionNotFound), errors.Is(err, domain.ErrLessonNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &validationErr):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		h.log.Error().Err(err).Msg("submission request failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Message: err.Error()})
}
