// Package recommend serves listing recommendations from a caller's click and
// search history. Ordering is delegated to a Ranker.
package recommend

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/common/metrics"
	"marketplace-search/internal/models"
)

// HistoryStore is the relational store surface the recommendations flow reads.
type HistoryStore interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	FetchClickHistory(ctx context.Context, userID string) ([]string, error)
	FetchSearchHistory(ctx context.Context, userID string) ([]string, error)
	FetchStoppedListings(ctx context.Context, userID string) ([]string, error)
	AddStopPreference(ctx context.Context, userID, listingID string) error
}

// Signals is everything known about a caller's interests.
type Signals struct {
	ClickedListings []string
	SearchTerms     []string
	Excluded        []string
}

// Empty reports whether there is nothing to base a recommendation on.
func (s Signals) Empty() bool {
	return len(s.ClickedListings) == 0 && len(s.SearchTerms) == 0
}

// Ranker turns signals into one page of listings.
type Ranker interface {
	Rank(ctx context.Context, signals Signals, page, limit int) ([]models.SearchResult, error)
}

type Service struct {
	history  HistoryStore
	ranker   Ranker
	maxLimit int
	logger   logger.Logger
}

func NewService(history HistoryStore, ranker Ranker, maxLimit int, log logger.Logger) *Service {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &Service{
		history:  history,
		ranker:   ranker,
		maxLimit: maxLimit,
		logger:   log.WithFields(map[string]interface{}{"component": "recommend"}),
	}
}

// Recommend returns one page of recommended listings for a known user.
func (s *Service) Recommend(ctx context.Context, userID string, page, limit int) (items []models.SearchResult, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = strings.ToLower(string(apperrors.Normalize(err).Code))
		}
		metrics.RecommendationRequests.WithLabelValues(outcome).Inc()
	}()

	if page < 1 || limit < 1 || limit > s.maxLimit {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("page must be at least 1 and limit between 1 and %d", s.maxLimit), nil)
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	signals, err := s.signals(ctx, userID)
	if err != nil {
		return nil, err
	}

	items, err = s.ranker.Rank(ctx, signals, page, limit)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Recommendations ranked", map[string]interface{}{
		"userId":   userID,
		"clicks":   len(signals.ClickedListings),
		"terms":    len(signals.SearchTerms),
		"excluded": len(signals.Excluded),
		"returned": len(items),
	})
	return items, nil
}

// StopSuggesting records that a listing must no longer be recommended.
func (s *Service) StopSuggesting(ctx context.Context, userID, listingID string) error {
	if strings.TrimSpace(listingID) == "" {
		return apperrors.NewValidationError("listing id is required", nil)
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	return s.history.AddStopPreference(ctx, userID, listingID)
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.NewUserNotFoundError(userID)
	}
	ok, err := s.history.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewUserNotFoundError(userID)
	}
	return nil
}

// signals reads the three history sources concurrently.
func (s *Service) signals(ctx context.Context, userID string) (Signals, error) {
	var out Signals
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		clicks, err := s.history.FetchClickHistory(gctx, userID)
		out.ClickedListings = clicks
		return err
	})
	g.Go(func() error {
		terms, err := s.history.FetchSearchHistory(gctx, userID)
		out.SearchTerms = terms
		return err
	})
	g.Go(func() error {
		stopped, err := s.history.FetchStoppedListings(gctx, userID)
		out.Excluded = stopped
		return err
	})

	if err := g.Wait(); err != nil {
		return Signals{}, err
	}
	return out, nil
}
