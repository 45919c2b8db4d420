package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

var start = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type published struct {
	key string
	ev  AttemptEvent
}

type recorder struct {
	mu          sync.Mutex
	events      []published
	messages    map[string][]string
	invalidated map[string]int
}

func newRecorder() *recorder {
	return &recorder{messages: map[string][]string{}, invalidated: map[string]int{}}
}

func (r *recorder) Publish(_ context.Context, key string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{key: key, ev: payload.(AttemptEvent)})
	return nil
}

func (r *recorder) SendMessageToUser(userID, messageType string, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[userID] = append(r.messages[userID], messageType)
}

func (r *recorder) Invalidate(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated[userID]++
	return nil
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.key
	}
	return out
}

type fixture struct {
	svc   *Service
	store *MemoryStore
	clock *fakeClock
	rec   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	clock := &fakeClock{now: start}
	rec := newRecorder()
	svc := NewService(store, NewQuestionBank(store, nil),
		WithClock(clock.Now),
		WithStats(rec),
		WithEvents(rec),
		WithNotifier(rec),
	)
	return &fixture{svc: svc, store: store, clock: clock, rec: rec}
}

func choice(order int, key string) models.Question {
	return models.Question{
		Type:          models.QuestionMultipleChoice,
		Prompt:        "pick one",
		Options:       datatypes.NewJSONType(models.QuestionOptions{Choices: []string{"a", "b", "c"}}),
		CorrectAnswer: datatypes.NewJSONType(models.TextValue(key)),
		Explanation:   "because " + key,
		Points:        10,
		DisplayOrder:  order,
	}
}

// addQuiz stores an active quiz with the given questions and returns it
// with ids assigned.
func (f *fixture) addQuiz(t *testing.T, maxAttempts int, timeLimit *int, questions ...models.Question) *models.Quiz {
	t.Helper()
	quiz := &models.Quiz{
		Title:        "Greetings",
		PassingScore: 70,
		MaxAttempts:  maxAttempts,
		TimeLimit:    timeLimit,
		IsActive:     true,
		EstimatedXP:  20,
		Questions:    questions,
	}
	if err := f.store.SaveQuiz(context.Background(), quiz); err != nil {
		t.Fatal(err)
	}
	return quiz
}

func (f *fixture) submit(t *testing.T, attemptID uuid.UUID, questionID uint, value string) {
	t.Helper()
	_, err := f.svc.SubmitAnswer(context.Background(), SubmitInput{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Value:      models.TextValue(value),
		TimeSpent:  5,
	})
	if err != nil {
		t.Fatalf("submit %d=%q: %v", questionID, value, err)
	}
}

func TestCompleteAttemptScenarios(t *testing.T) {
	testCases := []struct {
		name         string
		answers      []string
		expectScore  int
		expectPassed bool
		expectRight  int
	}{
		{"one right one wrong", []string{"a", "c"}, 50, false, 1},
		{"both right", []string{"a", "b"}, 100, true, 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			quiz := f.addQuiz(t, 3, nil, choice(1, "a"), choice(2, "b"))
			ctx := context.Background()

			attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
			if err != nil {
				t.Fatal(err)
			}
			for i, v := range tc.answers {
				f.submit(t, attempt.ID, quiz.Questions[i].ID, v)
			}

			res, err := f.svc.CompleteAttempt(ctx, attempt.ID)
			if err != nil {
				t.Fatal(err)
			}
			if res.Score != tc.expectScore || res.IsPassed != tc.expectPassed {
				t.Errorf("expected score %d passed=%v, got %+v", tc.expectScore, tc.expectPassed, res)
			}
			if res.CorrectCount != tc.expectRight || res.TotalQuestions != 2 {
				t.Errorf("unexpected counts %+v", res)
			}
			if res.CompletedCount != 1 {
				t.Errorf("expected 1 completed attempt, got %d", res.CompletedCount)
			}
			if tc.expectPassed && res.PassedCount != 1 {
				t.Errorf("expected 1 passed attempt, got %d", res.PassedCount)
			}
			if res.Reason != models.CompletionManual || res.AlreadyCompleted {
				t.Errorf("unexpected completion metadata %+v", res)
			}

			stored, err := f.store.GetAttempt(ctx, attempt.ID)
			if err != nil {
				t.Fatal(err)
			}
			if stored.Status != models.AttemptCompleted || stored.Score == nil || *stored.Score != tc.expectScore {
				t.Errorf("attempt not stored as completed: %+v", stored)
			}
		})
	}
}

func TestUnansweredQuestionsLowerTheScore(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(1, "a"), choice(2, "a"), choice(3, "a"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	f.submit(t, attempt.ID, quiz.Questions[0].ID, "a")
	f.submit(t, attempt.ID, quiz.Questions[1].ID, "a")

	res, err := f.svc.CompleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	// 20 of 30 points
	if res.Score != 67 || res.TotalPoints != 30 || res.EarnedPoints != 20 {
		t.Errorf("expected 67%% of 30 points, got %+v", res)
	}
	if res.TotalQuestions != 2 {
		t.Errorf("expected total_questions to count answers, got %d", res.TotalQuestions)
	}
}

func TestCompleteAttemptIsIdempotent(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(1, "a"), choice(2, "b"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	f.submit(t, attempt.ID, quiz.Questions[0].ID, "a")

	first, err := f.svc.CompleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.SubmitAnswer(ctx, SubmitInput{AttemptID: attempt.ID, QuestionID: quiz.Questions[1].ID, Value: models.TextValue("b")})
	if !errors.Is(err, ErrAttemptAlreadyCompleted) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected already completed conflict, got %v", err)
	}

	f.clock.Advance(time.Hour)
	second, err := f.svc.CompleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !second.AlreadyCompleted || second.Score != first.Score || second.CorrectCount != first.CorrectCount {
		t.Errorf("second completion changed the result: %+v then %+v", first, second)
	}

	completedEvents := 0
	for _, k := range f.rec.keys() {
		if k == EventAttemptCompleted {
			completedEvents++
		}
	}
	if completedEvents != 1 {
		t.Errorf("expected one completed event, got %d", completedEvents)
	}
}

func TestConcurrentCompletionScoresOnce(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(1, "a"), choice(2, "b"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	f.submit(t, attempt.ID, quiz.Questions[0].ID, "a")

	const callers = 8
	results := make([]*CompletionResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.CompleteAttempt(ctx, attempt.ID)
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !results[i].AlreadyCompleted {
			fresh++
		}
		if results[i].Score != 50 {
			t.Errorf("caller %d saw score %d", i, results[i].Score)
		}
	}
	if fresh != 1 {
		t.Errorf("expected exactly one transition, got %d", fresh)
	}
}

func TestStartAttemptEnforcesLimit(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 1, nil, choice(1, "a"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.CompleteAttempt(ctx, attempt.ID); err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.StartAttempt(ctx, quiz.ID, "learner")
	var limit *LimitExceededError
	if !errors.As(err, &limit) || !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected limit exceeded, got %v", err)
	}
	if limit.MaxAttempts != 1 || limit.AttemptsUsed != 1 || limit.Remaining() != 0 {
		t.Errorf("unexpected limit context %+v", limit)
	}

	if _, err := f.svc.StartAttempt(ctx, quiz.ID, "someone-else"); err != nil {
		t.Errorf("limit leaked across users: %v", err)
	}
}

func TestStartAttemptResumesOpenAttempt(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(1, "a"))
	ctx := context.Background()

	first, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID || second.AttemptNumber != 1 {
		t.Errorf("expected the open attempt back, got %s #%d", second.ID, second.AttemptNumber)
	}

	open, err := f.svc.ListAttempts(ctx, "learner", models.AttemptInProgress)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Errorf("expected one open attempt, got %d", len(open))
	}
}

func TestConcurrentStartsIssueOneAttempt(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(1, "a"))
	ctx := context.Background()

	const callers = 8
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			ids[i] = a.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent starts issued different attempts: %v", ids)
		}
	}
}

func TestStartAttemptRejectsBadQuizzes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inactive := f.addQuiz(t, 3, nil, choice(1, "a"))
	inactive.IsActive = false
	inactive.Questions = nil
	if err := f.store.SaveQuiz(ctx, inactive); err != nil {
		t.Fatal(err)
	}
	empty := f.addQuiz(t, 3, nil)

	testCases := []struct {
		name   string
		quizID uint
		userID string
		expect error
	}{
		{"unknown quiz", 999, "learner", ErrQuizNotFound},
		{"inactive quiz", inactive.ID, "learner", ErrValidation},
		{"quiz without questions", empty.ID, "learner", ErrValidation},
		{"missing user", empty.ID, "", ErrValidation},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.StartAttempt(ctx, tc.quizID, tc.userID)
			if !errors.Is(err, tc.expect) {
				t.Errorf("expected %v, got %v", tc.expect, err)
			}
		})
	}
}

func TestResubmissionReplacesAnswer(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(1, "a"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	first, err := f.svc.SubmitAnswer(ctx, SubmitInput{AttemptID: attempt.ID, QuestionID: quiz.Questions[0].ID, Value: models.TextValue("b")})
	if err != nil {
		t.Fatal(err)
	}
	if first.IsCorrect {
		t.Fatal("expected first answer to be wrong")
	}
	second, err := f.svc.SubmitAnswer(ctx, SubmitInput{AttemptID: attempt.ID, QuestionID: quiz.Questions[0].ID, Value: models.TextValue("a")})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("expected the answer row to be reused, got %s then %s", first.ID, second.ID)
	}

	answers, err := f.store.ListAnswers(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 1 || !answers[0].IsCorrect || answers[0].Submitted().Text() != "a" {
		t.Fatalf("expected only the latest answer, got %+v", answers)
	}

	res, err := f.svc.CompleteAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 100 {
		t.Errorf("expected latest answer scored, got %d", res.Score)
	}
}

func TestSubmitAnswerErrors(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(1, "a"))
	other := f.addQuiz(t, 3, nil, choice(1, "a"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	qid := quiz.Questions[0].ID

	testCases := []struct {
		name   string
		in     SubmitInput
		expect error
	}{
		{"unknown attempt", SubmitInput{AttemptID: uuid.New(), QuestionID: qid, Value: models.TextValue("a")}, ErrAttemptNotFound},
		{"question from another quiz", SubmitInput{AttemptID: attempt.ID, QuestionID: other.Questions[0].ID, Value: models.TextValue("a")}, ErrQuestionNotInQuiz},
		{"negative time", SubmitInput{AttemptID: attempt.ID, QuestionID: qid, Value: models.TextValue("a"), TimeSpent: -1}, ErrValidation},
		{"missing value", SubmitInput{AttemptID: attempt.ID, QuestionID: qid}, ErrValidation},
		{"mapping for a choice question", SubmitInput{AttemptID: attempt.ID, QuestionID: qid, Value: models.MappingValue(map[string]string{"a": "x"})}, ErrValidation},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SubmitAnswer(ctx, tc.in)
			if !errors.Is(err, tc.expect) {
				t.Errorf("expected %v, got %v", tc.expect, err)
			}
		})
	}
}

func TestDeadlineIsEnforced(t *testing.T) {
	f := newFixture(t)
	limit := 10
	quiz := f.addQuiz(t, 3, &limit, choice(1, "a"), choice(2, "b"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	if attempt.Deadline == nil || !attempt.Deadline.Equal(start.Add(10*time.Minute)) {
		t.Fatalf("expected deadline 10 minutes after start, got %v", attempt.Deadline)
	}
	f.submit(t, attempt.ID, quiz.Questions[0].ID, "a")

	f.clock.Advance(11 * time.Minute)
	_, err = f.svc.SubmitAnswer(ctx, SubmitInput{AttemptID: attempt.ID, QuestionID: quiz.Questions[1].ID, Value: models.TextValue("b")})
	if !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	stored, err := f.store.GetAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.AttemptCompleted || stored.CompletionReason != models.CompletionTimeout {
		t.Fatalf("expected a timed out completion, got %+v", stored)
	}
	if *stored.Score != 50 {
		t.Errorf("expected answers before the deadline to be scored, got %d", *stored.Score)
	}

	next, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	if next.ID == attempt.ID || next.AttemptNumber != 2 {
		t.Errorf("expected a fresh second attempt, got %s #%d", next.ID, next.AttemptNumber)
	}
}

func TestStartAttemptTimesOutStaleOpenAttempt(t *testing.T) {
	f := newFixture(t)
	limit := 5
	quiz := f.addQuiz(t, 3, &limit, choice(1, "a"))
	ctx := context.Background()

	stale, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)

	fresh, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.ID == stale.ID {
		t.Fatal("expected the stale attempt to be replaced")
	}
	old, err := f.store.GetAttempt(ctx, stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.CompletionReason != models.CompletionTimeout {
		t.Errorf("expected stale attempt timed out, got %+v", old)
	}
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	limit := 10
	timed := f.addQuiz(t, 3, &limit, choice(1, "a"))
	untimed := f.addQuiz(t, 3, nil, choice(1, "a"))
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		if _, err := f.svc.StartAttempt(ctx, timed.ID, user); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.svc.StartAttempt(ctx, untimed.ID, "u1"); err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.ExpireOverdue(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing overdue yet, got %d, %v", n, err)
	}

	f.clock.Advance(10 * time.Minute)
	n, err = f.svc.ExpireOverdue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 expired attempts, got %d", n)
	}
	if n, _ := f.svc.ExpireOverdue(ctx); n != 0 {
		t.Errorf("expected a second sweep to find nothing, got %d", n)
	}

	open, err := f.svc.ListAttempts(ctx, "u1", models.AttemptInProgress)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].QuizID != untimed.ID {
		t.Errorf("expected only the untimed attempt left open, got %+v", open)
	}

	msgs := f.rec.messages["u2"]
	if len(msgs) == 0 || msgs[0] != MessageAttemptExpired {
		t.Errorf("expected u2 notified of expiry, got %v", msgs)
	}
}

func TestAbandonAttempt(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 1, nil, choice(1, "a"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	abandoned, err := f.svc.AbandonAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if abandoned.Status != models.AttemptAbandoned {
		t.Fatalf("expected abandoned, got %s", abandoned.Status)
	}
	if _, err := f.svc.AbandonAttempt(ctx, attempt.ID); err != nil {
		t.Errorf("expected abandoning twice to be a no-op, got %v", err)
	}

	if _, err := f.svc.CompleteAttempt(ctx, attempt.ID); !errors.Is(err, ErrAttemptAbandoned) || !errors.Is(err, ErrConflict) {
		t.Errorf("expected abandoned conflict on complete, got %v", err)
	}
	_, err = f.svc.SubmitAnswer(ctx, SubmitInput{AttemptID: attempt.ID, QuestionID: quiz.Questions[0].ID, Value: models.TextValue("a")})
	if !errors.Is(err, ErrAttemptAlreadyCompleted) {
		t.Errorf("expected terminal attempt to reject answers, got %v", err)
	}

	// abandoned attempts never count toward max_attempts
	next, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	if next.AttemptNumber != 2 {
		t.Errorf("expected attempt number 2 after abandon, got %d", next.AttemptNumber)
	}
	res, err := f.svc.CompleteAttempt(ctx, next.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.AbandonAttempt(ctx, res.AttemptID); !errors.Is(err, ErrAttemptAlreadyCompleted) {
		t.Errorf("expected completed attempt to refuse abandon, got %v", err)
	}

	keys := f.rec.keys()
	expect := []string{EventAttemptStarted, EventAttemptAbandoned, EventAttemptStarted, EventAttemptCompleted}
	if len(keys) != len(expect) {
		t.Fatalf("expected events %v, got %v", expect, keys)
	}
	for i := range expect {
		if keys[i] != expect[i] {
			t.Errorf("event %d: expected %s, got %s", i, expect[i], keys[i])
		}
	}
	if f.rec.invalidated["learner"] != 4 {
		t.Errorf("expected stats invalidated on every transition, got %d", f.rec.invalidated["learner"])
	}
}

func TestNextQuestionFollowsDisplayOrder(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(2, "b"), choice(1, "a"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}

	next, err := f.svc.NextQuestion(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next.Done || next.Index != 0 || next.Question.DisplayOrder != 1 || next.Total != 2 {
		t.Fatalf("expected the display_order 1 question first, got %+v", next)
	}
	if next.Question.CorrectAnswer != nil {
		t.Error("answer key leaked to an open attempt")
	}

	f.submit(t, attempt.ID, next.Question.ID, "a")
	next, err = f.svc.NextQuestion(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if next.Done || next.Index != 1 || next.Answered != 1 {
		t.Fatalf("expected second question, got %+v", next)
	}

	f.submit(t, attempt.ID, next.Question.ID, "b")
	next, err = f.svc.NextQuestion(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !next.Done || next.Question != nil {
		t.Errorf("expected done, got %+v", next)
	}
}

func TestGetResultRevealsKeysOnlyWhenFinished(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 3, nil, choice(1, "a"), choice(2, "b"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	f.submit(t, attempt.ID, quiz.Questions[0].ID, "a")

	open, err := f.svc.GetResult(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range open.Questions {
		if row.CorrectValue != nil || row.Explanation != "" {
			t.Errorf("answer key revealed before completion: %+v", row)
		}
		if row.IsCorrect || row.PointsAwarded != 0 {
			t.Errorf("grading revealed before completion: %+v", row)
		}
	}
	if !open.Questions[0].Answered || open.Questions[0].SubmittedValue.Text() != "a" {
		t.Errorf("expected the submitted value on an open attempt, got %+v", open.Questions[0])
	}

	f.submit(t, attempt.ID, quiz.Questions[0].ID, "c")

	if _, err := f.svc.CompleteAttempt(ctx, attempt.ID); err != nil {
		t.Fatal(err)
	}
	done, err := f.svc.GetResult(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(done.Questions) != 2 || done.IsPassed || done.Passing != 70 {
		t.Fatalf("unexpected result %+v", done)
	}
	first, second := done.Questions[0], done.Questions[1]
	if !first.Answered || first.IsCorrect || first.SubmittedValue.Text() != "c" || first.CorrectValue.Text() != "a" {
		t.Errorf("unexpected first row %+v", first)
	}
	if second.Answered || second.SubmittedValue != nil || second.CorrectValue.Text() != "b" || second.PointsAwarded != 0 {
		t.Errorf("unexpected unanswered row %+v", second)
	}

	if _, err := f.svc.GetResult(ctx, uuid.New()); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestGetResultHidesKeysOfAbandonedAttempt(t *testing.T) {
	f := newFixture(t)
	quiz := f.addQuiz(t, 1, nil, choice(1, "b"))
	ctx := context.Background()

	attempt, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	f.submit(t, attempt.ID, quiz.Questions[0].ID, "b")
	if _, err := f.svc.AbandonAttempt(ctx, attempt.ID); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.GetResult(ctx, attempt.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range res.Questions {
		if row.CorrectValue != nil || row.Explanation != "" || row.IsCorrect || row.PointsAwarded != 0 {
			t.Errorf("abandoned attempt revealed grading: %+v", row)
		}
	}
	if res.IsPassed {
		t.Error("abandoned attempt reported as passed")
	}

	next, err := f.svc.StartAttempt(ctx, quiz.ID, "learner")
	if err != nil {
		t.Fatal(err)
	}
	if next.AttemptNumber <= attempt.AttemptNumber {
		t.Errorf("expected attempt number above %d, got %d", attempt.AttemptNumber, next.AttemptNumber)
	}
}

func TestListAttemptsValidatesStatus(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.ListAttempts(context.Background(), "learner", "paused"); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
