// internal/quiz/handler.go
package quiz

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/auth"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/stats"
)

type Handler struct {
	service  *Service
	stats    *stats.Service
	validate *validator.Validate
}

func NewHandler(service *Service, stats *stats.Service) *Handler {
	return &Handler{
		service:  service,
		stats:    stats,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the attempt API on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/attempts/start", h.StartAttempt).Methods("POST")
	r.HandleFunc("/attempts/answer", h.SubmitAnswer).Methods("POST")
	r.HandleFunc("/attempts/complete", h.CompleteAttempt).Methods("POST")
	r.HandleFunc("/attempts/abandon", h.AbandonAttempt).Methods("POST")
	r.HandleFunc("/attempts/{attemptId}/result", h.GetResult).Methods("GET")
	r.HandleFunc("/attempts/{attemptId}/next", h.NextQuestion).Methods("GET")
	r.HandleFunc("/users/{userId}/stats", h.GetUserStats).Methods("GET")
	r.HandleFunc("/users/{userId}/attempts", h.ListAttempts).Methods("GET")
	r.HandleFunc("/quizzes/{quizId}/questions", h.GetQuestions).Methods("GET")
}

type startRequest struct {
	QuizID uint   `json:"quizId" validate:"required"`
	UserID string `json:"userId" validate:"required,max=64"`
}

type startResponse struct {
	AttemptID     uuid.UUID  `json:"attemptId"`
	AttemptNumber int        `json:"attemptNumber"`
	StartedAt     time.Time  `json:"startedAt"`
	Deadline      *time.Time `json:"deadline,omitempty"`
}

type answerRequest struct {
	AttemptID      string             `json:"attemptId" validate:"required,uuid"`
	QuestionID     uint               `json:"questionId" validate:"required"`
	SubmittedValue models.AnswerValue `json:"submittedValue"`
	TimeSpent      int                `json:"timeSpent" validate:"min=0"`
}

type attemptRequest struct {
	AttemptID string `json:"attemptId" validate:"required,uuid"`
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !authorized(w, r, req.UserID) {
		return
	}

	attempt, err := h.service.StartAttempt(r.Context(), req.QuizID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, startResponse{
		AttemptID:     attempt.ID,
		AttemptNumber: attempt.AttemptNumber,
		StartedAt:     attempt.StartedAt,
		Deadline:      attempt.Deadline,
	})
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	attemptID := uuid.MustParse(req.AttemptID)
	if !h.ownsAttempt(w, r, attemptID) {
		return
	}

	_, err := h.service.SubmitAnswer(r.Context(), SubmitInput{
		AttemptID:  attemptID,
		QuestionID: req.QuestionID,
		Value:      req.SubmittedValue,
		TimeSpent:  req.TimeSpent,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (h *Handler) CompleteAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if !h.decode(w, r, &req) {
		return
	}
	attemptID := uuid.MustParse(req.AttemptID)
	if !h.ownsAttempt(w, r, attemptID) {
		return
	}

	result, err := h.service.CompleteAttempt(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) AbandonAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if !h.decode(w, r, &req) {
		return
	}
	attemptID := uuid.MustParse(req.AttemptID)
	if !h.ownsAttempt(w, r, attemptID) {
		return
	}

	attempt, err := h.service.AbandonAttempt(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"attemptId": attempt.ID,
		"status":    attempt.Status,
	})
}

func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := pathAttemptID(w, r)
	if !ok || !h.ownsAttempt(w, r, attemptID) {
		return
	}

	result, err := h.service.GetResult(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) NextQuestion(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := pathAttemptID(w, r)
	if !ok || !h.ownsAttempt(w, r, attemptID) {
		return
	}

	next, err := h.service.NextQuestion(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, next)
}

func (h *Handler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if !authorized(w, r, userID) {
		return
	}

	us, err := h.stats.UserStats(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, us)
}

func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if !authorized(w, r, userID) {
		return
	}

	status := models.AttemptStatus(r.URL.Query().Get("status"))
	attempts, err := h.service.ListAttempts(r.Context(), userID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, attempts)
}

func (h *Handler) GetQuestions(w http.ResponseWriter, r *http.Request) {
	quizID, err := strconv.ParseUint(mux.Vars(r)["quizId"], 10, 64)
	if err != nil {
		writeError(w, validationf("invalid quiz id"))
		return
	}

	questions, err := h.service.Questions(r.Context(), uint(quizID))
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, questions)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, validationf("invalid request body: %v", err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, validationf("%v", err))
		return false
	}
	return true
}

func pathAttemptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["attemptId"])
	if err != nil {
		writeError(w, validationf("invalid attempt id"))
		return uuid.Nil, false
	}
	return id, true
}

// authorized rejects requests whose token names a different user. Without
// JWT auth configured every request passes.
func authorized(w http.ResponseWriter, r *http.Request, userID string) bool {
	caller, ok := auth.UserIDFromContext(r.Context())
	if !ok || caller == userID {
		return true
	}
	respondJSON(w, http.StatusForbidden, map[string]string{"error": "user does not match token"})
	return false
}

func (h *Handler) ownsAttempt(w http.ResponseWriter, r *http.Request, attemptID uuid.UUID) bool {
	if _, ok := auth.UserIDFromContext(r.Context()); !ok {
		return true
	}
	attempt, err := h.service.GetAttempt(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return false
	}
	return authorized(w, r, attempt.UserID)
}

func writeError(w http.ResponseWriter, err error) {
	var limit *LimitExceededError
	switch {
	case errors.As(err, &limit):
		respondJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":             err.Error(),
			"remainingAttempts": limit.Remaining(),
			"maxAttempts":       limit.MaxAttempts,
			"attemptsUsed":      limit.AttemptsUsed,
		})
	case errors.Is(err, ErrValidation):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrConflict):
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("Internal error: %v", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
