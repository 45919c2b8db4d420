package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

// LoadSeed reads a JSON array of quizzes with their questions and stores
// them. Every question is validated before anything is written.
func LoadSeed(ctx context.Context, store Store, r io.Reader) (int, error) {
	var quizzes []models.Quiz
	if err := json.NewDecoder(r).Decode(&quizzes); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}

	for i := range quizzes {
		q := &quizzes[i]
		if q.Title == "" {
			return 0, fmt.Errorf("seed quiz %d: title is required", i)
		}
		if q.PassingScore < 0 || q.PassingScore > 100 {
			return 0, fmt.Errorf("seed quiz %q: passing_score %d out of range", q.Title, q.PassingScore)
		}
		for _, question := range q.Questions {
			if err := question.Validate(); err != nil {
				return 0, fmt.Errorf("seed quiz %q: %w", q.Title, err)
			}
		}
		if q.QuestionCount == 0 {
			q.QuestionCount = len(q.Questions)
		}
		if q.MaxAttempts == 0 {
			q.MaxAttempts = models.DefaultMaxAttempts
		}
	}

	for i := range quizzes {
		if err := store.SaveQuiz(ctx, &quizzes[i]); err != nil {
			return i, err
		}
	}
	log.Printf("Seeded %d quizzes", len(quizzes))
	return len(quizzes), nil
}
