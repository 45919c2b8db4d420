// Package stats derives per-quiz and per-user rollups from attempt history.
// Nothing here is stored: every figure is recomputed from attempts, so two
// callers fed the same history always agree.
package stats

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/grading"
	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

type AttemptSummary struct {
	AttemptID     uuid.UUID `json:"attemptId"`
	AttemptNumber int       `json:"attemptNumber"`
	Score         int       `json:"score"`
	CompletedAt   time.Time `json:"completedAt"`
}

type QuizStats struct {
	QuizID            uint            `json:"quizId"`
	AttemptsCount     int             `json:"attemptsCount"`
	BestScore         int             `json:"bestScore"`
	IsPassed          bool            `json:"isPassed"`
	PassedCount       int             `json:"passedCount"`
	PassingScore      int             `json:"passingScore"`
	MaxAttempts       int             `json:"maxAttempts"`
	RemainingAttempts int             `json:"remainingAttempts"`
	OpenAttempts      int             `json:"openAttempts"`
	LastAttempt       *AttemptSummary `json:"lastAttempt"`
}

type UserStats struct {
	UserID            string      `json:"userId"`
	TotalAttempts     int         `json:"totalAttempts"`
	CompletedAttempts int         `json:"completedAttempts"`
	PassedAttempts    int         `json:"passedAttempts"`
	AverageScore      int         `json:"averageScore"`
	Quizzes           []QuizStats `json:"quizzes"`
}

// ForQuiz rolls up one user's attempts at quiz. Attempts for other quizzes
// are ignored. Only completed attempts count toward the limit.
func ForQuiz(quiz models.Quiz, attempts []models.Attempt) (QuizStats, error) {
	qs := QuizStats{
		QuizID:       quiz.ID,
		PassingScore: quiz.PassingScore,
		MaxAttempts:  quiz.AttemptLimit(),
	}
	for i := range attempts {
		a := &attempts[i]
		if a.QuizID != quiz.ID {
			continue
		}
		switch a.Status {
		case models.AttemptInProgress:
			qs.OpenAttempts++
			continue
		case models.AttemptCompleted:
		default:
			continue
		}

		score, completedAt, err := completedFields(a)
		if err != nil {
			return QuizStats{}, err
		}
		qs.AttemptsCount++
		if score > qs.BestScore {
			qs.BestScore = score
		}
		if grading.IsPassed(score, quiz.PassingScore) {
			qs.IsPassed = true
			qs.PassedCount++
		}
		if qs.LastAttempt == nil || later(completedAt, a.ID, qs.LastAttempt) {
			qs.LastAttempt = &AttemptSummary{
				AttemptID:     a.ID,
				AttemptNumber: a.AttemptNumber,
				Score:         score,
				CompletedAt:   completedAt,
			}
		}
	}

	qs.RemainingAttempts = qs.MaxAttempts - qs.AttemptsCount
	if qs.RemainingAttempts < 0 {
		qs.RemainingAttempts = 0
	}
	return qs, nil
}

// Aggregate builds the user's global and per-quiz rollups. quizzes must
// contain every quiz the user's attempts reference.
func Aggregate(userID string, quizzes map[uint]models.Quiz, attempts []models.Attempt) (UserStats, error) {
	us := UserStats{UserID: userID, Quizzes: []QuizStats{}}

	byQuiz := make(map[uint][]models.Attempt)
	for _, a := range attempts {
		if a.UserID != userID {
			continue
		}
		byQuiz[a.QuizID] = append(byQuiz[a.QuizID], a)
	}

	ids := make([]uint, 0, len(byQuiz))
	for id := range byQuiz {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	scoreSum := 0
	for _, id := range ids {
		quiz, ok := quizzes[id]
		if !ok {
			return UserStats{}, fmt.Errorf("stats: quiz %d referenced by attempts of user %s is unknown", id, userID)
		}
		qs, err := ForQuiz(quiz, byQuiz[id])
		if err != nil {
			return UserStats{}, err
		}
		us.Quizzes = append(us.Quizzes, qs)

		us.TotalAttempts += len(byQuiz[id])
		for i := range byQuiz[id] {
			a := &byQuiz[id][i]
			if a.Status != models.AttemptCompleted {
				continue
			}
			score := *a.Score
			us.CompletedAttempts++
			scoreSum += score
			if grading.IsPassed(score, quiz.PassingScore) {
				us.PassedAttempts++
			}
		}
	}
	us.AverageScore = grading.RoundHalfUp(scoreSum, us.CompletedAttempts)
	return us, nil
}

func completedFields(a *models.Attempt) (int, time.Time, error) {
	if a.Score == nil || a.CompletedAt == nil {
		return 0, time.Time{}, fmt.Errorf("stats: completed attempt %s has no score or completion time", a.ID)
	}
	return *a.Score, *a.CompletedAt, nil
}

func later(at time.Time, id uuid.UUID, than *AttemptSummary) bool {
	if !at.Equal(than.CompletedAt) {
		return at.After(than.CompletedAt)
	}
	return id.String() > than.AttemptID.String()
}
