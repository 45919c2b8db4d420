package grading

import (
	"errors"
	"fmt"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

// Evaluation is the outcome of checking one submitted answer.
type Evaluation struct {
	IsCorrect     bool `json:"is_correct"`
	PointsAwarded int  `json:"points_awarded"`
}

var (
	ErrUnknownType     = errors.New("no evaluation rule for question type")
	ErrShapeMismatch   = errors.New("answer shape does not match question type")
	ErrInvalidQuestion = errors.New("question cannot be evaluated")
)

// rule decides correctness for one question type. Both values are known to
// have the shape the type calls for.
type rule func(key, submitted models.AnswerValue) bool

var rules = map[models.QuestionType]rule{
	models.QuestionMultipleChoice: exactMatch,
	models.QuestionTrueFalse:      exactMatch,
	models.QuestionFillBlank:      exactMatch,
	models.QuestionMatching:       mappingMatch,
}

// Evaluate checks submitted against the question's answer key. It is a pure
// function of its inputs. There is no partial credit: a correct answer earns
// the question's points, anything else earns 0.
func Evaluate(q models.Question, submitted models.AnswerValue) (Evaluation, error) {
	match, ok := rules[q.Type]
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: %q", ErrUnknownType, q.Type)
	}
	if q.Points <= 0 {
		return Evaluation{}, fmt.Errorf("%w: question %d has %d points", ErrInvalidQuestion, q.ID, q.Points)
	}
	key := q.Key()
	if !key.Fits(q.Type) {
		return Evaluation{}, fmt.Errorf("%w: question %d answer key does not fit %s", ErrInvalidQuestion, q.ID, q.Type)
	}
	if !submitted.Fits(q.Type) {
		return Evaluation{}, fmt.Errorf("%w: question %d is %s", ErrShapeMismatch, q.ID, q.Type)
	}

	if !match(key, submitted) {
		return Evaluation{}, nil
	}
	return Evaluation{IsCorrect: true, PointsAwarded: q.Points}, nil
}

// exactMatch compares as entered: no case folding, no trimming. Result
// display goes through Evaluate as well, so both paths agree.
func exactMatch(key, submitted models.AnswerValue) bool {
	return key.Text() == submitted.Text()
}

// mappingMatch requires the same set of left labels, each paired with the
// same right label.
func mappingMatch(key, submitted models.AnswerValue) bool {
	want, got := key.Pairs(), submitted.Pairs()
	if len(want) != len(got) {
		return false
	}
	for l, r := range want {
		if v, ok := got[l]; !ok || v != r {
			return false
		}
	}
	return true
}
