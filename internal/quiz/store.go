package quiz

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

// AttemptFilter narrows ListAttempts. Zero fields do not filter.
type AttemptFilter struct {
	UserID         string
	QuizID         uint
	Status         models.AttemptStatus
	DeadlineBefore *time.Time
	Limit          int
}

// StartFunc runs while the store holds the (user, quiz) lock and sees every
// attempt of that pair. The returned attempt is inserted unless it is one
// of history.
type StartFunc func(history []models.Attempt) (*models.Attempt, error)

// FinishFunc runs while the store holds the attempt row lock, only for an
// in-progress attempt. It mutates a into its completed form.
type FinishFunc func(a *models.Attempt, answers []models.Answer) error

// Store is the persistence boundary. Every method is a short transaction;
// nothing is kept in memory between calls by the service.
type Store interface {
	GetQuiz(ctx context.Context, id uint) (*models.Quiz, error)
	GetQuizzes(ctx context.Context, ids []uint) (map[uint]models.Quiz, error)
	GetQuizQuestions(ctx context.Context, quizID uint) ([]models.Question, error)
	SaveQuiz(ctx context.Context, quiz *models.Quiz) error

	GetAttempt(ctx context.Context, id uuid.UUID) (*models.Attempt, error)
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]models.Answer, error)
	ListUserAttempts(ctx context.Context, userID string) ([]models.Attempt, error)
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]models.Attempt, error)

	// StartAttempt serializes starts for one (user, quiz) pair.
	StartAttempt(ctx context.Context, quizID uint, userID string, decide StartFunc) (*models.Attempt, error)
	// SaveAnswer upserts on (attempt, question). It fails with
	// ErrAttemptNotFound or ErrAttemptAlreadyCompleted/ErrAttemptAbandoned.
	SaveAnswer(ctx context.Context, answer *models.Answer) error
	// CompleteAttempt flips in_progress to completed at most once. The bool
	// reports whether this call made the transition; otherwise the stored
	// attempt is returned untouched.
	CompleteAttempt(ctx context.Context, attemptID uuid.UUID, finish FinishFunc) (*models.Attempt, bool, error)
	AbandonAttempt(ctx context.Context, attemptID uuid.UUID, at time.Time) (*models.Attempt, bool, error)
}

func sortQuestions(qs []models.Question) {
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].DisplayOrder != qs[j].DisplayOrder {
			return qs[i].DisplayOrder < qs[j].DisplayOrder
		}
		return qs[i].ID < qs[j].ID
	})
}

func sortAttempts(as []models.Attempt) {
	sort.SliceStable(as, func(i, j int) bool {
		if !as[i].StartedAt.Equal(as[j].StartedAt) {
			return as[i].StartedAt.Before(as[j].StartedAt)
		}
		return as[i].ID.String() < as[j].ID.String()
	})
}

func inHistory(history []models.Attempt, id uuid.UUID) bool {
	for _, a := range history {
		if a.ID == id {
			return true
		}
	}
	return false
}
