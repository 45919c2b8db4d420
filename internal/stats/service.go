package stats

import (
	"context"
	"log"

	"github.com/ayhamrabea/arabic-platform-sub000/internal/models"
)

// Source is the attempt log the rollups are derived from.
type Source interface {
	ListUserAttempts(ctx context.Context, userID string) ([]models.Attempt, error)
	GetQuizzes(ctx context.Context, ids []uint) (map[uint]models.Quiz, error)
}

// Cache holds computed UserStats between invalidations. A miss is reported
// as (nil, nil).
type Cache interface {
	GetStats(ctx context.Context, userID string) (*UserStats, error)
	SetStats(ctx context.Context, userID string, s *UserStats) error
	InvalidateStats(ctx context.Context, userID string) error
}

type Service struct {
	src   Source
	cache Cache
}

// NewService returns the read side of the rollups. cache may be nil.
func NewService(src Source, cache Cache) *Service {
	return &Service{src: src, cache: cache}
}

func (s *Service) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	if s.cache != nil {
		cached, err := s.cache.GetStats(ctx, userID)
		if err != nil {
			log.Printf("Stats cache read failed for user %s: %v", userID, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	us, err := s.Compute(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetStats(ctx, userID, us); err != nil {
			log.Printf("Stats cache write failed for user %s: %v", userID, err)
		}
	}
	return us, nil
}

// Compute recomputes the rollups from the attempt log, bypassing the cache.
func (s *Service) Compute(ctx context.Context, userID string) (*UserStats, error) {
	attempts, err := s.src.ListUserAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]bool)
	ids := make([]uint, 0)
	for _, a := range attempts {
		if !seen[a.QuizID] {
			seen[a.QuizID] = true
			ids = append(ids, a.QuizID)
		}
	}
	quizzes := map[uint]models.Quiz{}
	if len(ids) > 0 {
		quizzes, err = s.src.GetQuizzes(ctx, ids)
		if err != nil {
			return nil, err
		}
	}

	us, err := Aggregate(userID, quizzes, attempts)
	if err != nil {
		return nil, err
	}
	return &us, nil
}

// Invalidate drops the cached rollups for userID. It must be called after
// every attempt transition that changes history.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateStats(ctx, userID)
}
