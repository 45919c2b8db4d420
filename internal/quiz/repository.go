// internal/quiz/repository.go
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
	"github.com/ayhamrabea/arabic-platform-sub000/pkg/database"
)

// Repository is the postgres Store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Models lists the tables Repository needs migrated.
func Models() []interface{} {
	return []interface{}{&models.Quiz{}, &models.Question{}, &models.Attempt{}, &models.Answer{}}
}

func (r *Repository) SaveQuiz(ctx context.Context, quiz *models.Quiz) error {
	err := database.Retry(ctx, "save quiz", func() error {
		return r.db.WithContext(ctx).
			Session(&gorm.Session{FullSaveAssociations: true}).
			Save(quiz).Error
	})
	if err != nil {
		log.Printf("Error saving quiz %q: %v", quiz.Title, err)
		return err
	}
	log.Printf("Saved quiz %d with %d questions", quiz.ID, len(quiz.Questions))
	return nil
}

func (r *Repository) GetQuiz(ctx context.Context, id uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := database.Retry(ctx, "get quiz", func() error {
		return r.db.WithContext(ctx).First(&quiz, id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		log.Printf("Error getting quiz %d: %v", id, err)
		return nil, err
	}
	return &quiz, nil
}

func (r *Repository) GetQuizzes(ctx context.Context, ids []uint) (map[uint]models.Quiz, error) {
	var list []models.Quiz
	err := database.Retry(ctx, "get quizzes", func() error {
		return r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error
	})
	if err != nil {
		log.Printf("Error getting quizzes %v: %v", ids, err)
		return nil, err
	}
	out := make(map[uint]models.Quiz, len(list))
	for _, q := range list {
		out[q.ID] = q
	}
	return out, nil
}

func (r *Repository) GetQuizQuestions(ctx context.Context, quizID uint) ([]models.Question, error) {
	var questions []models.Question
	err := database.Retry(ctx, "get questions", func() error {
		return r.db.WithContext(ctx).
			Where("quiz_id = ?", quizID).
			Order("display_order asc, id asc").
			Find(&questions).Error
	})
	if err != nil {
		log.Printf("Error getting questions: %v", err)
		return nil, err
	}
	return questions, nil
}

func (r *Repository) GetAttempt(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	var attempt models.Attempt
	err := database.Retry(ctx, "get attempt", func() error {
		return r.db.WithContext(ctx).First(&attempt, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttemptNotFound
		}
		log.Printf("Error getting attempt %s: %v", id, err)
		return nil, err
	}
	return &attempt, nil
}

func (r *Repository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]models.Answer, error) {
	var answers []models.Answer
	err := database.Retry(ctx, "list answers", func() error {
		return listAnswers(r.db.WithContext(ctx), attemptID, &answers)
	})
	if err != nil {
		log.Printf("Error listing answers for attempt %s: %v", attemptID, err)
		return nil, err
	}
	return answers, nil
}

func listAnswers(db *gorm.DB, attemptID uuid.UUID, out *[]models.Answer) error {
	return db.Where("attempt_id = ?", attemptID).Order("question_id asc").Find(out).Error
}

func (r *Repository) ListUserAttempts(ctx context.Context, userID string) ([]models.Attempt, error) {
	return r.ListAttempts(ctx, AttemptFilter{UserID: userID})
}

func (r *Repository) ListAttempts(ctx context.Context, f AttemptFilter) ([]models.Attempt, error) {
	var attempts []models.Attempt
	err := database.Retry(ctx, "list attempts", func() error {
		return filtered(r.db.WithContext(ctx), f).Find(&attempts).Error
	})
	if err != nil {
		log.Printf("Error listing attempts %+v: %v", f, err)
		return nil, err
	}
	return attempts, nil
}

func filtered(db *gorm.DB, f AttemptFilter) *gorm.DB {
	q := db.Model(&models.Attempt{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.QuizID != 0 {
		q = q.Where("quiz_id = ?", f.QuizID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DeadlineBefore != nil {
		q = q.Where("deadline IS NOT NULL AND deadline <= ?", *f.DeadlineBefore)
	}
	q = q.Order("started_at asc, id asc")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q
}

// StartAttempt holds a transaction-scoped advisory lock on the (quiz, user)
// pair so concurrent starts see each other's inserts.
func (r *Repository) StartAttempt(ctx context.Context, quizID uint, userID string, decide StartFunc) (*models.Attempt, error) {
	var started *models.Attempt
	err := database.Retry(ctx, "start attempt", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			key := fmt.Sprintf("%d:%s", quizID, userID)
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
				return err
			}

			var history []models.Attempt
			if err := filtered(tx, AttemptFilter{UserID: userID, QuizID: quizID}).Find(&history).Error; err != nil {
				return err
			}
			a, err := decide(history)
			if err != nil {
				return err
			}
			if !inHistory(history, a.ID) {
				if err := tx.Create(a).Error; err != nil {
					return err
				}
				log.Printf("Created attempt %s (#%d) for user %s on quiz %d", a.ID, a.AttemptNumber, userID, quizID)
			}
			started = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return started, nil
}

// SaveAnswer takes a share lock on the attempt row, which conflicts with
// the update lock CompleteAttempt holds.
func (r *Repository) SaveAnswer(ctx context.Context, answer *models.Answer) error {
	return database.Retry(ctx, "save answer", func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var attempt models.Attempt
			err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
				First(&attempt, "id = ?", answer.AttemptID).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAttemptNotFound
				}
				return err
			}
			if err := terminalError(attempt.Status); err != nil {
				return err
			}

			err = tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"submitted_value", "is_correct", "points_awarded", "time_spent", "answered_at",
				}),
			}).Create(answer).Error
			if err != nil {
				log.Printf("Error saving answer for attempt %s question %d: %v", answer.AttemptID, answer.QuestionID, err)
				return err
			}

			// on conflict the row keeps its original id
			var stored models.Answer
			err = tx.Select("id").
				Where("attempt_id = ? AND question_id = ?", answer.AttemptID, answer.QuestionID).
				First(&stored).Error
			if err != nil {
				return err
			}
			answer.ID = stored.ID
			return nil
		})
	})
}

func (r *Repository) CompleteAttempt(ctx context.Context, attemptID uuid.UUID, finish FinishFunc) (*models.Attempt, bool, error) {
	var (
		result  models.Attempt
		changed bool
	)
	err := database.Retry(ctx, "complete attempt", func() error {
		changed = false
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockAttempt(tx, attemptID, &result); err != nil {
				return err
			}
			if result.Status != models.AttemptInProgress {
				return nil
			}

			var answers []models.Answer
			if err := listAnswers(tx, attemptID, &answers); err != nil {
				return err
			}
			if err := finish(&result, answers); err != nil {
				return err
			}

			res := tx.Model(&models.Attempt{}).
				Where("id = ? AND status = ?", attemptID, models.AttemptInProgress).
				Updates(map[string]interface{}{
					"status":            result.Status,
					"completed_at":      result.CompletedAt,
					"completion_reason": result.CompletionReason,
					"score":             result.Score,
					"correct_answers":   result.CorrectAnswers,
					"total_questions":   result.TotalQuestions,
					"earned_points":     result.EarnedPoints,
					"total_points":      result.TotalPoints,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return fmt.Errorf("attempt %s changed state during completion", attemptID)
			}
			changed = true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return &result, changed, nil
}

func (r *Repository) AbandonAttempt(ctx context.Context, attemptID uuid.UUID, at time.Time) (*models.Attempt, bool, error) {
	var (
		result  models.Attempt
		changed bool
	)
	err := database.Retry(ctx, "abandon attempt", func() error {
		changed = false
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := lockAttempt(tx, attemptID, &result); err != nil {
				return err
			}
			if result.Status != models.AttemptInProgress {
				return nil
			}
			res := tx.Model(&models.Attempt{}).
				Where("id = ? AND status = ?", attemptID, models.AttemptInProgress).
				Updates(map[string]interface{}{
					"status":       models.AttemptAbandoned,
					"completed_at": at,
				})
			if res.Error != nil {
				return res.Error
			}
			result.Status = models.AttemptAbandoned
			result.CompletedAt = &at
			changed = res.RowsAffected == 1
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return &result, changed, nil
}

func lockAttempt(tx *gorm.DB, id uuid.UUID, out *models.Attempt) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(out, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAttemptNotFound
	}
	return err
}
