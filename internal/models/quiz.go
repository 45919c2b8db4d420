// internal/models/quiz.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionFillBlank      QuestionType = "fill_blank"
	QuestionMatching       QuestionType = "matching"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMultipleChoice, QuestionTrueFalse, QuestionFillBlank, QuestionMatching:
		return true
	}
	return false
}

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// Terminal reports whether no further answers or transitions are accepted.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptAbandoned
}

type CompletionReason string

const (
	CompletionManual  CompletionReason = "manual"
	CompletionTimeout CompletionReason = "timeout"
)

const DefaultMaxAttempts = 3

type Quiz struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LessonID      uint      `json:"lesson_id" gorm:"index"`
	Title         string    `json:"title" gorm:"not null"`
	QuestionCount int       `json:"question_count"`
	PassingScore  int       `json:"passing_score" gorm:"not null"`
	// TimeLimit is in minutes; nil means untimed.
	TimeLimit   *int       `json:"time_limit,omitempty"`
	MaxAttempts int        `json:"max_attempts" gorm:"not null;default:3"`
	IsActive    bool       `json:"is_active" gorm:"not null"`
	EstimatedXP int        `json:"estimated_xp"`
	Questions   []Question `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
}

// AttemptLimit returns max_attempts, falling back to the default for
// quizzes stored without one.
func (q Quiz) AttemptLimit() int {
	if q.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return q.MaxAttempts
}

// Deadline returns the time an attempt started at startedAt must be
// completed by, if the quiz is timed.
func (q Quiz) Deadline(startedAt time.Time) *time.Time {
	if q.TimeLimit == nil || *q.TimeLimit <= 0 {
		return nil
	}
	d := startedAt.Add(time.Duration(*q.TimeLimit) * time.Minute)
	return &d
}

// QuestionOptions holds Choices for multiple_choice/true_false and the two
// labeled columns for matching.
type QuestionOptions struct {
	Choices []string `json:"choices,omitempty"`
	Left    []string `json:"left,omitempty"`
	Right   []string `json:"right,omitempty"`
}

type Question struct {
	ID            uint                                `json:"id" gorm:"primaryKey"`
	CreatedAt     time.Time                           `json:"created_at"`
	UpdatedAt     time.Time                           `json:"updated_at"`
	QuizID        uint                                `json:"quiz_id" gorm:"not null;index"`
	Type          QuestionType                        `json:"type" gorm:"type:varchar(20);not null"`
	Prompt        string                              `json:"prompt" gorm:"type:text;not null"`
	Options       datatypes.JSONType[QuestionOptions] `json:"options" gorm:"type:jsonb"`
	CorrectAnswer datatypes.JSONType[AnswerValue]     `json:"correct_answer" gorm:"type:jsonb;not null"`
	Explanation   string                              `json:"explanation" gorm:"type:text"`
	Points        int                                 `json:"points" gorm:"not null"`
	Difficulty    string                              `json:"difficulty" gorm:"type:varchar(20)"`
	DisplayOrder  int                                 `json:"display_order" gorm:"not null;index"`
}

// Key returns the canonical correct answer.
func (q Question) Key() AnswerValue {
	return q.CorrectAnswer.Data()
}

// Validate checks that points are positive and that the options and the
// correct answer have the shape the question type calls for.
func (q Question) Validate() error {
	if q.Points <= 0 {
		return fmt.Errorf("question %d: points must be positive, got %d", q.ID, q.Points)
	}
	if !q.Type.Valid() {
		return fmt.Errorf("question %d: unknown type %q", q.ID, q.Type)
	}
	opts := q.Options.Data()
	key := q.Key()
	if !key.Fits(q.Type) {
		return fmt.Errorf("question %d: correct answer shape does not match type %s", q.ID, q.Type)
	}

	switch q.Type {
	case QuestionMultipleChoice, QuestionTrueFalse:
		if len(opts.Choices) == 0 {
			return fmt.Errorf("question %d: %s needs choices", q.ID, q.Type)
		}
		if !contains(opts.Choices, key.Text()) {
			return fmt.Errorf("question %d: correct answer %q is not one of the choices", q.ID, key.Text())
		}
	case QuestionFillBlank:
		if key.Text() == "" {
			return fmt.Errorf("question %d: fill_blank needs a non-empty answer", q.ID)
		}
	case QuestionMatching:
		if len(opts.Left) == 0 || len(opts.Right) == 0 {
			return fmt.Errorf("question %d: matching needs left and right columns", q.ID)
		}
		pairs := key.Pairs()
		if len(pairs) != len(opts.Left) {
			return fmt.Errorf("question %d: matching key pairs %d of %d left labels", q.ID, len(pairs), len(opts.Left))
		}
		for l, r := range pairs {
			if !contains(opts.Left, l) || !contains(opts.Right, r) {
				return fmt.Errorf("question %d: matching pair %q->%q is not in the options", q.ID, l, r)
			}
		}
	}
	return nil
}

type Attempt struct {
	ID               uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	QuizID           uint             `json:"quiz_id" gorm:"not null;index:idx_attempt_user_quiz,priority:2"`
	UserID           string           `json:"user_id" gorm:"type:varchar(64);not null;index:idx_attempt_user_quiz,priority:1"`
	AttemptNumber    int              `json:"attempt_number" gorm:"not null"`
	Status           AttemptStatus    `json:"status" gorm:"type:varchar(16);not null;index"`
	StartedAt        time.Time        `json:"started_at" gorm:"not null"`
	Deadline         *time.Time       `json:"deadline,omitempty" gorm:"index"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CompletionReason CompletionReason `json:"completion_reason,omitempty" gorm:"type:varchar(16)"`
	Score            *int             `json:"score"`
	CorrectAnswers   int              `json:"correct_answers"`
	TotalQuestions   int              `json:"total_questions"`
	EarnedPoints     int              `json:"earned_points"`
	TotalPoints      int              `json:"total_points"`
}

// Expired reports whether the server-side deadline has passed at now.
func (a Attempt) Expired(now time.Time) bool {
	return a.Deadline != nil && !now.Before(*a.Deadline)
}

type Answer struct {
	ID             uuid.UUID                       `json:"id" gorm:"type:uuid;primaryKey"`
	AttemptID      uuid.UUID                       `json:"attempt_id" gorm:"type:uuid;not null;uniqueIndex:idx_answer_attempt_question"`
	QuestionID     uint                            `json:"question_id" gorm:"not null;uniqueIndex:idx_answer_attempt_question"`
	SubmittedValue datatypes.JSONType[AnswerValue] `json:"submitted_value" gorm:"type:jsonb;not null"`
	IsCorrect      bool                            `json:"is_correct" gorm:"not null"`
	PointsAwarded  int                             `json:"points_awarded" gorm:"not null"`
	TimeSpent      int                             `json:"time_spent" gorm:"not null"`
	AnsweredAt     time.Time                       `json:"answered_at" gorm:"not null"`
}

func (a Answer) Submitted() AnswerValue {
	return a.SubmittedValue.Data()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
