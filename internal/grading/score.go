package grading

import (
	"fmt"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

// Score is the aggregate of an attempt's evaluated answers.
type Score struct {
	Percentage   int `json:"percentage"`
	CorrectCount int `json:"correct_count"`
	TotalPoints  int `json:"total_points"`
	EarnedPoints int `json:"earned_points"`
	Answered     int `json:"answered"`
}

// Aggregate combines answers into a score over the whole question set.
// Unanswered questions still count toward TotalPoints, so they lower the
// percentage as a wrong answer would.
func Aggregate(answers []models.Answer, questions []models.Question) (Score, error) {
	points := make(map[uint]int, len(questions))
	var s Score
	for _, q := range questions {
		if q.Points <= 0 {
			return Score{}, fmt.Errorf("%w: question %d has %d points", ErrInvalidQuestion, q.ID, q.Points)
		}
		points[q.ID] = q.Points
		s.TotalPoints += q.Points
	}

	seen := make(map[uint]bool, len(answers))
	for _, a := range answers {
		limit, ok := points[a.QuestionID]
		if !ok {
			return Score{}, fmt.Errorf("answer %s references question %d outside the quiz", a.ID, a.QuestionID)
		}
		if seen[a.QuestionID] {
			return Score{}, fmt.Errorf("question %d answered more than once", a.QuestionID)
		}
		seen[a.QuestionID] = true
		if a.PointsAwarded < 0 || a.PointsAwarded > limit {
			return Score{}, fmt.Errorf("answer %s awarded %d of %d points", a.ID, a.PointsAwarded, limit)
		}
		s.EarnedPoints += a.PointsAwarded
		if a.IsCorrect {
			s.CorrectCount++
		}
	}
	s.Answered = len(answers)
	s.Percentage = Percentage(s.EarnedPoints, s.TotalPoints)
	return s, nil
}

// Percentage is the one place scores are rounded: round-half-up of
// earned/total*100, or 0 when there is nothing to earn.
func Percentage(earned, total int) int {
	if total <= 0 {
		return 0
	}
	return RoundHalfUp(100*earned, total)
}

// RoundHalfUp returns num/den rounded half up for non-negative num and
// positive den, in integer arithmetic so every caller gets identical bits.
func RoundHalfUp(num, den int) int {
	if den <= 0 {
		return 0
	}
	return (2*num + den) / (2 * den)
}

func IsPassed(percentage, passingScore int) bool {
	return percentage >= passingScore
}
