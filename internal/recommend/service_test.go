package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/history"
	"marketplace-search/internal/models"
	"marketplace-search/internal/search/query"
)

type fakeHistory struct {
	mu       sync.Mutex
	users    map[string]bool
	clicks   []string
	terms    []string
	stopped  []string
	stops    []string
	fetchErr error
	existErr error
}

func (f *fakeHistory) UserExists(_ context.Context, userID string) (bool, error) {
	if f.existErr != nil {
		return false, f.existErr
	}
	return f.users[userID], nil
}

func (f *fakeHistory) FetchClickHistory(context.Context, string) ([]string, error) {
	return f.clicks, nil
}

func (f *fakeHistory) FetchSearchHistory(context.Context, string) ([]string, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.terms, nil
}

func (f *fakeHistory) FetchStoppedListings(context.Context, string) ([]string, error) {
	return f.stopped, nil
}

func (f *fakeHistory) AddStopPreference(_ context.Context, userID, listingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, userID+":"+listingID)
	return nil
}

type recordingRanker struct {
	got   Signals
	page  int
	limit int
	calls int
	items []models.SearchResult
	err   error
}

func (r *recordingRanker) Rank(_ context.Context, signals Signals, page, limit int) ([]models.SearchResult, error) {
	r.calls++
	r.got, r.page, r.limit = signals, page, limit
	return r.items, r.err
}

func newTestService(t *testing.T, h *fakeHistory, r Ranker) *Service {
	return NewService(h, r, 50, logger.NewTestLogger(t))
}

// ==========================
// Recommend
// ==========================

func TestRecommend_PassesAllSignalsToRanker(t *testing.T) {
	h := &fakeHistory{
		users:   map[string]bool{"42": true},
		clicks:  []string{"L1", "L3"},
		terms:   []string{"laptop"},
		stopped: []string{"L9"},
	}
	ranker := &recordingRanker{items: []models.SearchResult{{ListingID: "L4"}}}
	svc := newTestService(t, h, ranker)

	items, err := svc.Recommend(context.Background(), "42", 2, 10)
	require.NoError(t, err)

	assert.Equal(t, []models.SearchResult{{ListingID: "L4"}}, items)
	assert.Equal(t, Signals{
		ClickedListings: []string{"L1", "L3"},
		SearchTerms:     []string{"laptop"},
		Excluded:        []string{"L9"},
	}, ranker.got)
	assert.Equal(t, 2, ranker.page)
	assert.Equal(t, 10, ranker.limit)
}

func TestRecommend_UnknownUser(t *testing.T) {
	ranker := &recordingRanker{}
	svc := newTestService(t, &fakeHistory{users: map[string]bool{}}, ranker)

	for _, userID := range []string{"", "7"} {
		_, err := svc.Recommend(context.Background(), userID, 1, 10)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))
		assert.Equal(t, 404, apperrors.HTTPStatus(apperrors.Normalize(err).Code))
	}
	assert.Zero(t, ranker.calls)
}

func TestRecommend_NonNumericCallerIsUnknown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ranker := &recordingRanker{}
	svc := NewService(history.NewRepository(db, time.Second), ranker, 50, logger.NewTestLogger(t))

	_, err = svc.Recommend(context.Background(), "abc", 1, 10)
	require.Error(t, err)
	assert.Equal(t, 404, apperrors.HTTPStatus(apperrors.Normalize(err).Code))

	err = svc.StopSuggesting(context.Background(), "Bearer xyz", "L1")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))

	assert.Zero(t, ranker.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecommend_InvalidPaging(t *testing.T) {
	ranker := &recordingRanker{}
	svc := newTestService(t, &fakeHistory{users: map[string]bool{"42": true}}, ranker)

	for _, tc := range []struct{ page, limit int }{{0, 10}, {1, 0}, {1, 51}} {
		_, err := svc.Recommend(context.Background(), "42", tc.page, tc.limit)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation), "page=%d limit=%d", tc.page, tc.limit)
	}
	assert.Zero(t, ranker.calls)
}

func TestRecommend_HistoryFailureSurfaces(t *testing.T) {
	h := &fakeHistory{
		users:    map[string]bool{"42": true},
		fetchErr: apperrors.NewDatabaseUnavailableError(errors.New("down")),
	}
	ranker := &recordingRanker{}
	svc := newTestService(t, h, ranker)

	_, err := svc.Recommend(context.Background(), "42", 1, 10)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabaseUnavailable))
	assert.Zero(t, ranker.calls)

	h.fetchErr = nil
	h.existErr = apperrors.NewQueryTimeoutError("user_exists")
	_, err = svc.Recommend(context.Background(), "42", 1, 10)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeQueryTimeout))
}

// ==========================
// StopSuggesting
// ==========================

func TestStopSuggesting(t *testing.T) {
	h := &fakeHistory{users: map[string]bool{"42": true}}
	svc := newTestService(t, h, &recordingRanker{})

	require.NoError(t, svc.StopSuggesting(context.Background(), "42", "L7"))
	assert.Equal(t, []string{"42:L7"}, h.stops)

	err := svc.StopSuggesting(context.Background(), "7", "L7")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))

	err = svc.StopSuggesting(context.Background(), "42", " ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	assert.Len(t, h.stops, 1)
}

// ==========================
// Elasticsearch ranker
// ==========================

type capturingStore struct {
	body query.Clause
	raw  *models.RawSearchResult
	err  error
}

func (s *capturingStore) Search(_ context.Context, body query.Clause) (*models.RawSearchResult, error) {
	s.body = body
	return s.raw, s.err
}

func boolOf(t *testing.T, body query.Clause) query.Clause {
	t.Helper()
	q, ok := body["query"].(query.Clause)
	require.True(t, ok)
	b, ok := q["bool"].(query.Clause)
	require.True(t, ok)
	return b
}

func TestRankBody_WithSignals(t *testing.T) {
	body := RankBody(Signals{
		ClickedListings: []string{"L1"},
		SearchTerms:     []string{"laptop", "desk"},
		Excluded:        []string{"L9"},
	}, 3, 5)

	assert.Equal(t, 10, body["from"])
	assert.Equal(t, 5, body["size"])

	b := boolOf(t, body)
	assert.Equal(t, 1, b["minimum_should_match"])
	assert.Equal(t, []query.Clause{{"ids": query.Clause{"values": []string{"L9"}}}}, b["must_not"])
	assert.Equal(t, []query.Clause{{"term": query.Clause{"status": "AVAILABLE"}}}, b["filter"])

	should := b["should"].([]query.Clause)
	require.Len(t, should, 2)
	assert.Equal(t, "laptop desk", should[0]["multi_match"].(query.Clause)["query"])
	assert.Equal(t, []query.Clause{{"_id": "L1"}}, should[1]["more_like_this"].(query.Clause)["like"])
	assert.Equal(t, []query.Clause{{"_score": query.Clause{"order": "desc"}}}, body["sort"])
}

func TestRankBody_NoSignalsFallsBackToNewest(t *testing.T) {
	signals := Signals{}
	require.True(t, signals.Empty())

	body := RankBody(signals, 1, 20)
	b := boolOf(t, body)

	assert.NotContains(t, b, "should")
	assert.NotContains(t, b, "must_not")
	assert.Equal(t, []query.Clause{{"dateCreated": query.Clause{"order": "desc"}}}, body["sort"])
}

func TestRankBody_CapsTerms(t *testing.T) {
	terms := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		terms = append(terms, "t")
	}
	b := boolOf(t, RankBody(Signals{SearchTerms: terms}, 1, 10))
	should := b["should"].([]query.Clause)
	require.Len(t, should, 1)
	assert.Equal(t, "t t t t t t t t t t", should[0]["multi_match"].(query.Clause)["query"])
}

func TestESRanker_ShapesHits(t *testing.T) {
	src, err := json.Marshal(models.Listing{
		ListingID:  "L4",
		SellerID:   "S1",
		SellerName: "alice",
		Title:      "Standing desk",
		Price:      120,
		Status:     models.StatusAvailable,
	})
	require.NoError(t, err)

	store := &capturingStore{raw: &models.RawSearchResult{
		Total: 1,
		Hits:  []models.RawHit{{ID: "L4", Source: src}},
	}}
	items, err := NewESRanker(store).Rank(context.Background(), Signals{SearchTerms: []string{"desk"}}, 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "L4", items[0].ListingID)
	assert.Equal(t, "Standing desk", items[0].Title)
	assert.NotNil(t, store.body)
}

func TestESRanker_StoreErrorSurfaces(t *testing.T) {
	store := &capturingStore{err: apperrors.NewIndexNotFoundError("listings")}
	_, err := NewESRanker(store).Rank(context.Background(), Signals{}, 1, 10)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexNotFound))
}
