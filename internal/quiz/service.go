// internal/quiz/service.go
package quiz

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/grading"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/metrics"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/stats"
)

// Routing keys for attempt events.
const (
	EventAttemptStarted   = "quiz.attempt.started"
	EventAttemptCompleted = "quiz.attempt.completed"
	EventAttemptAbandoned = "quiz.attempt.abandoned"
)

// WebSocket message types pushed to the attempt's owner.
const (
	MessageAttemptCompleted = "attempt_completed"
	MessageAttemptExpired   = "attempt_expired"
	MessageStatsUpdated     = "stats_updated"
)

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

type Notifier interface {
	SendMessageToUser(userID string, messageType string, data interface{})
}

// StatsInvalidator drops cached rollups once a user's history changes.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// AttemptEvent is the payload of every attempt event.
type AttemptEvent struct {
	AttemptID     uuid.UUID               `json:"attemptId"`
	QuizID        uint                    `json:"quizId"`
	LessonID      uint                    `json:"lessonId"`
	UserID        string                  `json:"userId"`
	AttemptNumber int                     `json:"attemptNumber"`
	Status        models.AttemptStatus    `json:"status"`
	Reason        models.CompletionReason `json:"reason,omitempty"`
	Score         *int                    `json:"score,omitempty"`
	IsPassed      bool                    `json:"isPassed"`
	EstimatedXP   int                     `json:"estimatedXp,omitempty"`
	OccurredAt    time.Time               `json:"occurredAt"`
}

type SubmitInput struct {
	AttemptID  uuid.UUID
	QuestionID uint
	Value      models.AnswerValue
	TimeSpent  int
}

type CompletionResult struct {
	AttemptID        uuid.UUID               `json:"attemptId"`
	QuizID           uint                    `json:"quizId"`
	UserID           string                  `json:"userId"`
	Score            int                     `json:"score"`
	CorrectCount     int                     `json:"correctCount"`
	TotalQuestions   int                     `json:"totalQuestions"`
	EarnedPoints     int                     `json:"earnedPoints"`
	TotalPoints      int                     `json:"totalPoints"`
	CompletedCount   int                     `json:"completedCount"`
	PassedCount      int                     `json:"passedCount"`
	IsPassed         bool                    `json:"isPassed"`
	Reason           models.CompletionReason `json:"reason"`
	AlreadyCompleted bool                    `json:"alreadyCompleted"`
}

type Service struct {
	store    Store
	bank     *QuestionBank
	stats    StatsInvalidator
	events   EventPublisher
	notifier Notifier
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithStats(inv StatsInvalidator) Option {
	return func(s *Service) { s.stats = inv }
}

func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(store Store, bank *QuestionBank, opts ...Option) *Service {
	s := &Service{
		store: store,
		bank:  bank,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartAttempt issues a new attempt, or returns the user's open attempt on
// the quiz if there is one. Only completed attempts count toward the limit.
func (s *Service) StartAttempt(ctx context.Context, quizID uint, userID string) (*models.Attempt, error) {
	if userID == "" {
		return nil, validationf("userId is required")
	}
	quiz, err := s.bank.Quiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !quiz.IsActive {
		return nil, ErrQuizInactive
	}
	questions, err := s.bank.Questions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrEmptyQuiz
	}

	now := s.now()
	if err := s.expireOpen(ctx, quizID, userID, now); err != nil {
		return nil, err
	}

	resumed := false
	attempt, err := s.store.StartAttempt(ctx, quizID, userID, func(history []models.Attempt) (*models.Attempt, error) {
		resumed = false
		qs, err := stats.ForQuiz(*quiz, history)
		if err != nil {
			return nil, err
		}
		if qs.RemainingAttempts == 0 {
			return nil, &LimitExceededError{QuizID: quizID, MaxAttempts: qs.MaxAttempts, AttemptsUsed: qs.AttemptsCount}
		}
		for i := range history {
			if history[i].Status != models.AttemptInProgress {
				continue
			}
			if history[i].Expired(now) {
				return nil, ErrAttemptExpired
			}
			resumed = true
			open := history[i]
			return &open, nil
		}
		return &models.Attempt{
			ID:            uuid.New(),
			QuizID:        quizID,
			UserID:        userID,
			AttemptNumber: nextAttemptNumber(history),
			Status:        models.AttemptInProgress,
			StartedAt:     now,
			Deadline:      quiz.Deadline(now),
		}, nil
	})
	if err != nil {
		if errors.Is(err, ErrLimitExceeded) {
			metrics.AttemptStarts.WithLabelValues("limit_exceeded").Inc()
		}
		log.Printf("Error starting attempt on quiz %d for user %s: %v", quizID, userID, err)
		return nil, err
	}

	if resumed {
		metrics.AttemptStarts.WithLabelValues("resumed").Inc()
		log.Printf("Resumed attempt %s on quiz %d for user %s", attempt.ID, quizID, userID)
		return attempt, nil
	}

	metrics.AttemptStarts.WithLabelValues("started").Inc()
	log.Printf("Started attempt %s (#%d) on quiz %d for user %s", attempt.ID, attempt.AttemptNumber, quizID, userID)
	s.invalidate(ctx, userID)
	s.publish(ctx, EventAttemptStarted, s.event(attempt, quiz))
	return attempt, nil
}

// expireOpen times out the user's open attempts on quizID whose deadline
// has passed, so a fresh one can be issued.
func (s *Service) expireOpen(ctx context.Context, quizID uint, userID string, now time.Time) error {
	open, err := s.store.ListAttempts(ctx, AttemptFilter{
		UserID: userID,
		QuizID: quizID,
		Status: models.AttemptInProgress,
	})
	if err != nil {
		return err
	}
	for _, a := range open {
		if !a.Expired(now) {
			continue
		}
		if _, err := s.complete(ctx, a.ID, models.CompletionTimeout); err != nil && !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return nil
}

// SubmitAnswer evaluates and stores one answer. A later submission for the
// same question replaces the earlier one.
func (s *Service) SubmitAnswer(ctx context.Context, in SubmitInput) (*models.Answer, error) {
	if in.TimeSpent < 0 {
		return nil, validationf("timeSpent must not be negative")
	}
	if in.Value.IsZero() {
		return nil, validationf("submittedValue is required")
	}

	attempt, err := s.store.GetAttempt(ctx, in.AttemptID)
	if err != nil {
		return nil, err
	}
	if err := terminalError(attempt.Status); err != nil {
		return nil, err
	}
	now := s.now()
	if attempt.Expired(now) {
		if _, err := s.complete(ctx, attempt.ID, models.CompletionTimeout); err != nil {
			log.Printf("Error timing out attempt %s: %v", attempt.ID, err)
		}
		return nil, ErrAttemptExpired
	}

	q, err := s.bank.Question(ctx, attempt.QuizID, in.QuestionID)
	if err != nil {
		return nil, err
	}
	eval, err := grading.Evaluate(*q, in.Value)
	if err != nil {
		if errors.Is(err, grading.ErrShapeMismatch) {
			return nil, validationf("submittedValue does not fit a %s question", q.Type)
		}
		log.Printf("Error evaluating question %d: %v", q.ID, err)
		return nil, err
	}

	answer := &models.Answer{
		ID:             uuid.New(),
		AttemptID:      attempt.ID,
		QuestionID:     q.ID,
		SubmittedValue: datatypes.NewJSONType(in.Value),
		IsCorrect:      eval.IsCorrect,
		PointsAwarded:  eval.PointsAwarded,
		TimeSpent:      in.TimeSpent,
		AnsweredAt:     now,
	}
	if err := s.store.SaveAnswer(ctx, answer); err != nil {
		return nil, err
	}

	metrics.AnswersSubmitted.WithLabelValues(string(q.Type), metrics.Bool(eval.IsCorrect)).Inc()
	return answer, nil
}

// CompleteAttempt scores the attempt. Completing an already completed
// attempt returns the stored result unchanged.
func (s *Service) CompleteAttempt(ctx context.Context, attemptID uuid.UUID) (*CompletionResult, error) {
	return s.complete(ctx, attemptID, models.CompletionManual)
}

func (s *Service) complete(ctx context.Context, attemptID uuid.UUID, reason models.CompletionReason) (*CompletionResult, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == models.AttemptAbandoned {
		return nil, ErrAttemptAbandoned
	}
	quiz, err := s.bank.Quiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	questions, err := s.bank.Questions(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if attempt.Expired(now) {
		reason = models.CompletionTimeout
	}
	done, changed, err := s.store.CompleteAttempt(ctx, attemptID, func(a *models.Attempt, answers []models.Answer) error {
		score, err := grading.Aggregate(answers, questions)
		if err != nil {
			return err
		}
		pct := score.Percentage
		completedAt := now
		a.Status = models.AttemptCompleted
		a.CompletedAt = &completedAt
		a.CompletionReason = reason
		a.Score = &pct
		a.CorrectAnswers = score.CorrectCount
		a.TotalQuestions = len(answers)
		a.EarnedPoints = score.EarnedPoints
		a.TotalPoints = score.TotalPoints
		return nil
	})
	if err != nil {
		log.Printf("Error completing attempt %s: %v", attemptID, err)
		return nil, err
	}
	if !changed && done.Status == models.AttemptAbandoned {
		return nil, ErrAttemptAbandoned
	}

	history, err := s.store.ListAttempts(ctx, AttemptFilter{UserID: done.UserID, QuizID: done.QuizID})
	if err != nil {
		return nil, err
	}
	qs, err := stats.ForQuiz(*quiz, history)
	if err != nil {
		return nil, err
	}
	result := &CompletionResult{
		AttemptID:        done.ID,
		QuizID:           done.QuizID,
		UserID:           done.UserID,
		Score:            *done.Score,
		CorrectCount:     done.CorrectAnswers,
		TotalQuestions:   done.TotalQuestions,
		EarnedPoints:     done.EarnedPoints,
		TotalPoints:      done.TotalPoints,
		CompletedCount:   qs.AttemptsCount,
		PassedCount:      qs.PassedCount,
		IsPassed:         grading.IsPassed(*done.Score, quiz.PassingScore),
		Reason:           done.CompletionReason,
		AlreadyCompleted: !changed,
	}
	if !changed {
		return result, nil
	}

	log.Printf("Completed attempt %s for user %s: score %d (%s)", done.ID, done.UserID, result.Score, done.CompletionReason)
	metrics.AttemptsCompleted.WithLabelValues(string(done.CompletionReason), passLabel(result.IsPassed)).Inc()
	metrics.AttemptScores.Observe(float64(result.Score))
	s.invalidate(ctx, done.UserID)
	s.publish(ctx, EventAttemptCompleted, s.event(done, quiz))

	msgType := MessageAttemptCompleted
	if done.CompletionReason == models.CompletionTimeout {
		msgType = MessageAttemptExpired
	}
	s.notify(done.UserID, msgType, result)
	s.notify(done.UserID, MessageStatsUpdated, qs)
	return result, nil
}

// AbandonAttempt closes an open attempt without scoring it. Abandoning an
// abandoned attempt is a no-op.
func (s *Service) AbandonAttempt(ctx context.Context, attemptID uuid.UUID) (*models.Attempt, error) {
	a, changed, err := s.store.AbandonAttempt(ctx, attemptID, s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		if a.Status == models.AttemptCompleted {
			return nil, ErrAttemptAlreadyCompleted
		}
		return a, nil
	}

	log.Printf("Abandoned attempt %s for user %s", a.ID, a.UserID)
	metrics.AttemptsAbandoned.Inc()
	s.invalidate(ctx, a.UserID)
	quiz, err := s.bank.Quiz(ctx, a.QuizID)
	if err != nil {
		log.Printf("Error loading quiz %d for abandon event: %v", a.QuizID, err)
		return a, nil
	}
	s.publish(ctx, EventAttemptAbandoned, s.event(a, quiz))
	return a, nil
}

// NextQuestion returns the first unanswered question in display order.
func (s *Service) NextQuestion(ctx context.Context, attemptID uuid.UUID) (*models.NextQuestion, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := terminalError(attempt.Status); err != nil {
		return nil, err
	}
	if attempt.Expired(s.now()) {
		return nil, ErrAttemptExpired
	}
	questions, err := s.bank.Questions(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	answered := make(map[uint]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionID] = true
	}
	next := &models.NextQuestion{
		AttemptID: attemptID,
		Total:     len(questions),
		Answered:  len(answered),
		Deadline:  attempt.Deadline,
		Index:     len(questions),
		Done:      true,
	}
	for i, q := range questions {
		if answered[q.ID] {
			continue
		}
		dto := q.ToDTO(false)
		next.Index = i
		next.Done = false
		next.Question = &dto
		break
	}
	return next, nil
}

// GetResult returns the attempt with a per-question breakdown. Grading,
// answer keys and explanations are revealed only for completed attempts.
// Open and abandoned attempts show which questions were answered and with
// what.
func (s *Service) GetResult(ctx context.Context, attemptID uuid.UUID) (*models.AttemptResult, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.bank.Quiz(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	questions, err := s.bank.Questions(ctx, attempt.QuizID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[uint]models.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	reveal := attempt.Status == models.AttemptCompleted

	result := &models.AttemptResult{
		Attempt:   *attempt,
		Passing:   quiz.PassingScore,
		Questions: make([]models.QuestionResult, 0, len(questions)),
	}
	if attempt.Score != nil {
		result.IsPassed = grading.IsPassed(*attempt.Score, quiz.PassingScore)
	}
	for _, q := range questions {
		row := models.QuestionResult{
			QuestionID: q.ID,
			Type:       q.Type,
			Prompt:     q.Prompt,
			Points:     q.Points,
		}
		if a, ok := byQuestion[q.ID]; ok {
			v := a.Submitted()
			row.Answered = true
			row.SubmittedValue = &v
			row.TimeSpent = a.TimeSpent
			if reveal {
				row.IsCorrect = a.IsCorrect
				row.PointsAwarded = a.PointsAwarded
			}
		}
		if reveal {
			key := q.Key()
			row.CorrectValue = &key
			row.Explanation = q.Explanation
		}
		result.Questions = append(result.Questions, row)
	}
	return result, nil
}

func (s *Service) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*models.Attempt, error) {
	return s.store.GetAttempt(ctx, attemptID)
}

// ListAttempts returns a user's attempts, oldest first, optionally only
// those in status.
func (s *Service) ListAttempts(ctx context.Context, userID string, status models.AttemptStatus) ([]models.Attempt, error) {
	if userID == "" {
		return nil, validationf("userId is required")
	}
	switch status {
	case "", models.AttemptInProgress, models.AttemptCompleted, models.AttemptAbandoned:
	default:
		return nil, validationf("unknown status %q", status)
	}
	return s.store.ListAttempts(ctx, AttemptFilter{UserID: userID, Status: status})
}

// Questions returns the quiz's questions without answer keys.
func (s *Service) Questions(ctx context.Context, quizID uint) ([]models.QuestionDTO, error) {
	questions, err := s.bank.Questions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	dtos := make([]models.QuestionDTO, len(questions))
	for i, q := range questions {
		dtos[i] = q.ToDTO(false)
	}
	return dtos, nil
}

// ExpireOverdue completes every open attempt whose deadline has passed and
// reports how many it closed.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.store.ListAttempts(ctx, AttemptFilter{
		Status:         models.AttemptInProgress,
		DeadlineBefore: &now,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, a := range overdue {
		res, err := s.complete(ctx, a.ID, models.CompletionTimeout)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if !res.AlreadyCompleted {
			expired++
		}
	}
	if expired > 0 {
		log.Printf("Expired %d overdue attempts", expired)
	}
	return expired, errors.Join(errs...)
}

func (s *Service) event(a *models.Attempt, quiz *models.Quiz) AttemptEvent {
	ev := AttemptEvent{
		AttemptID:     a.ID,
		QuizID:        a.QuizID,
		LessonID:      quiz.LessonID,
		UserID:        a.UserID,
		AttemptNumber: a.AttemptNumber,
		Status:        a.Status,
		Reason:        a.CompletionReason,
		Score:         a.Score,
		OccurredAt:    s.now(),
	}
	if a.Score != nil {
		ev.IsPassed = grading.IsPassed(*a.Score, quiz.PassingScore)
		if ev.IsPassed {
			ev.EstimatedXP = quiz.EstimatedXP
		}
	}
	return ev
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.stats == nil {
		return
	}
	if err := s.stats.Invalidate(ctx, userID); err != nil {
		log.Printf("Error invalidating stats for user %s: %v", userID, err)
	}
}

func (s *Service) publish(ctx context.Context, routingKey string, ev AttemptEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, ev); err != nil {
		log.Printf("Error publishing %s for attempt %s: %v", routingKey, ev.AttemptID, err)
	}
}

func (s *Service) notify(userID, messageType string, data interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendMessageToUser(userID, messageType, data)
}

// nextAttemptNumber numbers attempts past every earlier one of the pair, so
// numbers keep increasing after abandoned attempts. Without abandons this is
// the completed count plus one.
func nextAttemptNumber(history []models.Attempt) int {
	n := 0
	for _, a := range history {
		if a.AttemptNumber > n {
			n = a.AttemptNumber
		}
	}
	return n + 1
}

func passLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}
