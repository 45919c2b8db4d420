package quiz

import (
	"context"
	"log"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

// BankCache stores quiz bundles keyed by quiz id. A miss is (nil, nil).
type BankCache interface {
	GetQuizBundle(ctx context.Context, quizID uint) (*models.QuizBundle, error)
	SetQuizBundle(ctx context.Context, bundle *models.QuizBundle) error
}

// QuestionBank is the read-only view of quizzes and their questions.
// Quiz content does not change while attempts run, so bundles are cached
// without invalidation.
type QuestionBank struct {
	store Store
	cache BankCache
}

// NewQuestionBank wraps store. cache may be nil.
func NewQuestionBank(store Store, cache BankCache) *QuestionBank {
	return &QuestionBank{store: store, cache: cache}
}

func (b *QuestionBank) bundle(ctx context.Context, quizID uint) (*models.QuizBundle, error) {
	if b.cache != nil {
		cached, err := b.cache.GetQuizBundle(ctx, quizID)
		if err != nil {
			log.Printf("Question bank cache read failed for quiz %d: %v", quizID, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	quiz, err := b.store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	questions, err := b.store.GetQuizQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	sortQuestions(questions)
	bundle := &models.QuizBundle{Quiz: *quiz, Questions: questions}

	if b.cache != nil {
		if err := b.cache.SetQuizBundle(ctx, bundle); err != nil {
			log.Printf("Question bank cache write failed for quiz %d: %v", quizID, err)
		}
	}
	return bundle, nil
}

func (b *QuestionBank) Quiz(ctx context.Context, quizID uint) (*models.Quiz, error) {
	bundle, err := b.bundle(ctx, quizID)
	if err != nil {
		return nil, err
	}
	quiz := bundle.Quiz
	return &quiz, nil
}

// Questions returns the quiz's questions in display order.
func (b *QuestionBank) Questions(ctx context.Context, quizID uint) ([]models.Question, error) {
	bundle, err := b.bundle(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return append([]models.Question(nil), bundle.Questions...), nil
}

// Question returns questionID if it belongs to quizID.
func (b *QuestionBank) Question(ctx context.Context, quizID, questionID uint) (*models.Question, error) {
	bundle, err := b.bundle(ctx, quizID)
	if err != nil {
		return nil, err
	}
	for i := range bundle.Questions {
		if bundle.Questions[i].ID == questionID {
			q := bundle.Questions[i]
			return &q, nil
		}
	}
	return nil, ErrQuestionNotInQuiz
}
