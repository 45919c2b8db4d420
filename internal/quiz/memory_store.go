package quiz

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

// MemoryStore keeps everything in process memory behind one mutex. It backs
// STORE_DRIVER=memory and the tests.
type MemoryStore struct {
	mu        sync.RWMutex
	quizzes   map[uint]models.Quiz
	questions map[uint][]models.Question
	attempts  map[uuid.UUID]models.Attempt
	answers   map[uuid.UUID]map[uint]models.Answer
	nextQuiz  uint
	nextQ     uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes:   map[uint]models.Quiz{},
		questions: map[uint][]models.Question{},
		attempts:  map[uuid.UUID]models.Attempt{},
		answers:   map[uuid.UUID]map[uint]models.Answer{},
	}
}

// SaveQuiz stores quiz and its Questions, assigning ids to new rows.
func (m *MemoryStore) SaveQuiz(_ context.Context, quiz *models.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if quiz.ID == 0 {
		m.nextQuiz++
		quiz.ID = m.nextQuiz
	} else if quiz.ID > m.nextQuiz {
		m.nextQuiz = quiz.ID
	}
	qs := make([]models.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		if q.ID == 0 {
			m.nextQ++
			q.ID = m.nextQ
		} else if q.ID > m.nextQ {
			m.nextQ = q.ID
		}
		q.QuizID = quiz.ID
		qs[i] = *q
	}
	stored := *quiz
	stored.Questions = nil
	m.quizzes[quiz.ID] = stored
	m.questions[quiz.ID] = qs
	return nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, id uint) (*models.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, ErrQuizNotFound
	}
	return &q, nil
}

func (m *MemoryStore) GetQuizzes(_ context.Context, ids []uint) (map[uint]models.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uint]models.Quiz, len(ids))
	for _, id := range ids {
		if q, ok := m.quizzes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (m *MemoryStore) GetQuizQuestions(_ context.Context, quizID uint) ([]models.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qs := append([]models.Question(nil), m.questions[quizID]...)
	sortQuestions(qs)
	return qs, nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id uuid.UUID) (*models.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return &a, nil
}

func (m *MemoryStore) ListAnswers(_ context.Context, attemptID uuid.UUID) ([]models.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.answersLocked(attemptID), nil
}

func (m *MemoryStore) answersLocked(attemptID uuid.UUID) []models.Answer {
	out := make([]models.Answer, 0, len(m.answers[attemptID]))
	for _, a := range m.answers[attemptID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

func (m *MemoryStore) ListUserAttempts(ctx context.Context, userID string) ([]models.Attempt, error) {
	return m.ListAttempts(ctx, AttemptFilter{UserID: userID})
}

func (m *MemoryStore) ListAttempts(_ context.Context, f AttemptFilter) ([]models.Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(f), nil
}

func (m *MemoryStore) filterLocked(f AttemptFilter) []models.Attempt {
	out := make([]models.Attempt, 0)
	for _, a := range m.attempts {
		if f.UserID != "" && a.UserID != f.UserID {
			continue
		}
		if f.QuizID != 0 && a.QuizID != f.QuizID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.DeadlineBefore != nil && (a.Deadline == nil || a.Deadline.After(*f.DeadlineBefore)) {
			continue
		}
		out = append(out, a)
	}
	sortAttempts(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (m *MemoryStore) StartAttempt(_ context.Context, quizID uint, userID string, decide StartFunc) (*models.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.filterLocked(AttemptFilter{UserID: userID, QuizID: quizID})
	a, err := decide(history)
	if err != nil {
		return nil, err
	}
	if !inHistory(history, a.ID) {
		m.attempts[a.ID] = *a
	}
	return a, nil
}

func (m *MemoryStore) SaveAnswer(_ context.Context, answer *models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[answer.AttemptID]
	if !ok {
		return ErrAttemptNotFound
	}
	if err := terminalError(a.Status); err != nil {
		return err
	}
	byQuestion := m.answers[answer.AttemptID]
	if byQuestion == nil {
		byQuestion = map[uint]models.Answer{}
		m.answers[answer.AttemptID] = byQuestion
	}
	if prev, ok := byQuestion[answer.QuestionID]; ok {
		answer.ID = prev.ID
	}
	byQuestion[answer.QuestionID] = *answer
	return nil
}

func (m *MemoryStore) CompleteAttempt(_ context.Context, attemptID uuid.UUID, finish FinishFunc) (*models.Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[attemptID]
	if !ok {
		return nil, false, ErrAttemptNotFound
	}
	if a.Status != models.AttemptInProgress {
		return &a, false, nil
	}
	if err := finish(&a, m.answersLocked(attemptID)); err != nil {
		return nil, false, err
	}
	m.attempts[attemptID] = a
	return &a, true, nil
}

func (m *MemoryStore) AbandonAttempt(_ context.Context, attemptID uuid.UUID, at time.Time) (*models.Attempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attempts[attemptID]
	if !ok {
		return nil, false, ErrAttemptNotFound
	}
	if a.Status != models.AttemptInProgress {
		return &a, false, nil
	}
	a.Status = models.AttemptAbandoned
	a.CompletedAt = &at
	m.attempts[attemptID] = a
	return &a, true, nil
}

func terminalError(status models.AttemptStatus) error {
	switch status {
	case models.AttemptCompleted:
		return ErrAttemptAlreadyCompleted
	case models.AttemptAbandoned:
		return ErrAttemptAbandoned
	}
	return nil
}
