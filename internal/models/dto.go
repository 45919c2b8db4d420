// internal/models/dto.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// QuestionDTO is what a learner sees while taking a quiz.
type QuestionDTO struct {
	ID            uint            `json:"id"`
	Type          QuestionType    `json:"type"`
	Prompt        string          `json:"prompt"`
	Options       QuestionOptions `json:"options"`
	Points        int             `json:"points"`
	Difficulty    string          `json:"difficulty,omitempty"`
	DisplayOrder  int             `json:"display_order"`
	CorrectAnswer *AnswerValue    `json:"correct_answer,omitempty"` // only once the attempt is over
}

func (q Question) ToDTO(reveal bool) QuestionDTO {
	dto := QuestionDTO{
		ID:           q.ID,
		Type:         q.Type,
		Prompt:       q.Prompt,
		Options:      q.Options.Data(),
		Points:       q.Points,
		Difficulty:   q.Difficulty,
		DisplayOrder: q.DisplayOrder,
	}
	if reveal {
		key := q.Key()
		dto.CorrectAnswer = &key
	}
	return dto
}

// QuestionResult is one row of an attempt's per-question breakdown.
type QuestionResult struct {
	QuestionID     uint         `json:"question_id"`
	Type           QuestionType `json:"type"`
	Prompt         string       `json:"prompt"`
	Answered       bool         `json:"answered"`
	SubmittedValue *AnswerValue `json:"submitted_value,omitempty"`
	CorrectValue   *AnswerValue `json:"correct_value,omitempty"`
	IsCorrect      bool         `json:"is_correct"`
	Explanation    string       `json:"explanation,omitempty"`
	Points         int          `json:"points"`
	PointsAwarded  int          `json:"points_awarded"`
	TimeSpent      int          `json:"time_spent"`
}

type AttemptResult struct {
	Attempt   Attempt          `json:"attempt"`
	IsPassed  bool             `json:"is_passed"`
	Passing   int              `json:"passing_score"`
	Questions []QuestionResult `json:"questions"`
}

// NextQuestion is the sequencing answer for an in-progress attempt.
type NextQuestion struct {
	AttemptID uuid.UUID    `json:"attempt_id"`
	Done      bool         `json:"done"`
	Index     int          `json:"index"`
	Total     int          `json:"total"`
	Answered  int          `json:"answered"`
	Deadline  *time.Time   `json:"deadline,omitempty"`
	Question  *QuestionDTO `json:"question,omitempty"`
}

// QuizBundle is a quiz together with its ordered questions, the unit the
// question bank caches.
type QuizBundle struct {
	Quiz      Quiz       `json:"quiz"`
	Questions []Question `json:"questions"`
}
