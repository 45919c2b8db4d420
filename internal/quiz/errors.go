package quiz

import (
	"errors"
	"fmt"
)

// Error categories. Handlers map these to status codes; concrete errors
// below wrap exactly one of them.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrLimitExceeded = errors.New("attempt limit exceeded")
)

var (
	ErrQuizNotFound            = fmt.Errorf("%w: quiz", ErrNotFound)
	ErrAttemptNotFound         = fmt.Errorf("%w: attempt", ErrNotFound)
	ErrQuestionNotInQuiz       = fmt.Errorf("%w: question is not part of this quiz", ErrNotFound)
	ErrAttemptAlreadyCompleted = fmt.Errorf("%w: attempt already completed", ErrConflict)
	ErrAttemptAbandoned        = fmt.Errorf("%w (abandoned)", ErrAttemptAlreadyCompleted)
	ErrAttemptExpired          = fmt.Errorf("%w: attempt time limit has passed", ErrConflict)
	ErrQuizInactive            = fmt.Errorf("%w: quiz is not active", ErrValidation)
	ErrEmptyQuiz               = fmt.Errorf("%w: quiz has no questions", ErrValidation)
)

// LimitExceededError is returned by StartAttempt once the user has used
// every allowed attempt.
type LimitExceededError struct {
	QuizID       uint
	MaxAttempts  int
	AttemptsUsed int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("attempt limit exceeded for quiz %d: %d of %d attempts used", e.QuizID, e.AttemptsUsed, e.MaxAttempts)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

func (e *LimitExceededError) Remaining() int {
	if r := e.MaxAttempts - e.AttemptsUsed; r > 0 {
		return r
	}
	return 0
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
