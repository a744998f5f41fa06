package indexsync

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/models"
)

// memWriter is an in-memory document store with external versioning.
type memWriter struct {
	mu     sync.Mutex
	docs   map[string]models.Listing
	writes int
	// failures are returned, in order, before any write is applied.
	failures []error
}

func newMemWriter() *memWriter {
	return &memWriter{docs: map[string]models.Listing{}}
}

func (w *memWriter) nextFailure() error {
	if len(w.failures) == 0 {
		return nil
	}
	err := w.failures[0]
	w.failures = w.failures[1:]
	return err
}

func (w *memWriter) Upsert(_ context.Context, listing *models.Listing) (models.WriteOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if err := w.nextFailure(); err != nil {
		return "", err
	}
	if cur, ok := w.docs[listing.ListingID]; ok && listing.Version > 0 && listing.Version <= cur.Version {
		return models.OutcomeStale, nil
	}
	w.docs[listing.ListingID] = *listing
	return models.OutcomeIndexed, nil
}

func (w *memWriter) Delete(_ context.Context, listingID string, version int64) (models.WriteOutcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if err := w.nextFailure(); err != nil {
		return "", err
	}
	cur, ok := w.docs[listingID]
	if !ok {
		return models.OutcomeAbsent, nil
	}
	if version > 0 && version <= cur.Version {
		return models.OutcomeStale, nil
	}
	delete(w.docs, listingID)
	return models.OutcomeDeleted, nil
}

func (w *memWriter) snapshot() map[string]models.Listing {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]models.Listing, len(w.docs))
	for k, v := range w.docs {
		out[k] = v
	}
	return out
}

func (w *memWriter) writeCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

type countingInvalidator struct {
	mu    sync.Mutex
	count int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return nil
}

func sampleListing() *models.Listing {
	return &models.Listing{
		ListingID:   "L1",
		SellerID:    "S1",
		SellerName:  "billybobjoe",
		Title:       "High-Performance Laptop",
		Description: "Great for gaming",
		Price:       450,
		Location:    models.GeoPoint{Lat: 45.4215, Lon: -75.6972},
		Status:      models.StatusAvailable,
		DateCreated: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
		ImageURL:    "https://img.example/l1.jpg",
	}
}

// ==========================
// Idempotence
// ==========================

func TestHandler_CreateAndEditConverge(t *testing.T) {
	final := sampleListing()
	final.Title = "Laptop, barely used"
	final.Price = 400

	orders := map[string][]string{
		"create then edit": {"create", "edit"},
		"edit then create": {"edit", "create"},
		"replayed":         {"create", "edit", "edit", "create"},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			store := newMemWriter()
			h := NewHandler(store, logger.NewTestLogger(t))

			for _, op := range order {
				listing := *final
				var err error
				if op == "create" {
					_, err = h.OnCreated(context.Background(), &listing)
				} else {
					_, err = h.OnEdited(context.Background(), &listing)
				}
				require.NoError(t, err)
			}

			docs := store.snapshot()
			require.Len(t, docs, 1)
			assert.Equal(t, *final, docs["L1"])
		})
	}
}

func TestHandler_DeleteTwiceIsNoOp(t *testing.T) {
	store := newMemWriter()
	h := NewHandler(store, logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := h.OnCreated(ctx, sampleListing())
	require.NoError(t, err)

	outcome, err := h.OnDeleted(ctx, "L1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDeleted, outcome)

	outcome, err = h.OnDeleted(ctx, "L1", 0)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAbsent, outcome)

	assert.Empty(t, store.snapshot())
}

func TestHandler_DeleteUnknownListing(t *testing.T) {
	h := NewHandler(newMemWriter(), logger.NewTestLogger(t))

	outcome, err := h.OnDeleted(context.Background(), "missing", 0)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAbsent, outcome)
}

// ==========================
// Rejection
// ==========================

func TestHandler_NegativePriceIsRejectedWithoutWrite(t *testing.T) {
	store := newMemWriter()
	h := NewHandler(store, logger.NewTestLogger(t))

	listing := sampleListing()
	listing.Price = -0.01

	for _, apply := range []func(context.Context, *models.Listing) (models.WriteOutcome, error){h.OnCreated, h.OnEdited} {
		_, err := apply(context.Background(), listing)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	}

	assert.Equal(t, 0, store.writeCount())
	assert.Empty(t, store.snapshot())
}

func TestHandler_NonFiniteValuesAreRejected(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(l *models.Listing)
	}{
		{"NaN price", func(l *models.Listing) { l.Price = math.NaN() }},
		{"infinite price", func(l *models.Listing) { l.Price = math.Inf(1) }},
		{"NaN latitude", func(l *models.Listing) { l.Location.Lat = math.NaN() }},
		{"NaN longitude", func(l *models.Listing) { l.Location.Lon = math.NaN() }},
		{"latitude out of range", func(l *models.Listing) { l.Location.Lat = 120 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemWriter()
			h := NewHandler(store, logger.NewTestLogger(t))

			listing := sampleListing()
			tt.mutate(listing)

			_, err := h.OnCreated(context.Background(), listing)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
			assert.Equal(t, 0, store.writeCount())
		})
	}
}

func TestHandler_InvalidEvents(t *testing.T) {
	store := newMemWriter()
	h := NewHandler(store, logger.NewTestLogger(t))
	ctx := context.Background()

	noID := sampleListing()
	noID.ListingID = " "
	_, err := h.OnCreated(ctx, noID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	badStatus := sampleListing()
	badStatus.Status = "RESERVED"
	_, err = h.OnEdited(ctx, badStatus)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, err = h.OnCreated(ctx, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, err = h.OnDeleted(ctx, "", 0)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	assert.Equal(t, 0, store.writeCount())
}

func TestHandler_ZeroPriceIsAccepted(t *testing.T) {
	store := newMemWriter()
	h := NewHandler(store, logger.NewTestLogger(t))

	listing := sampleListing()
	listing.Price = 0
	_, err := h.OnCreated(context.Background(), listing)
	require.NoError(t, err)
	assert.Len(t, store.snapshot(), 1)
}

// ==========================
// Versioning
// ==========================

func TestHandler_StaleVersionsAreIgnored(t *testing.T) {
	store := newMemWriter()
	h := NewHandler(store, logger.NewTestLogger(t))
	ctx := context.Background()

	v2 := sampleListing()
	v2.Version = 2
	v2.Title = "newer"
	_, err := h.OnEdited(ctx, v2)
	require.NoError(t, err)

	v1 := sampleListing()
	v1.Version = 1
	v1.Title = "older"
	outcome, err := h.OnCreated(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStale, outcome)
	assert.Equal(t, "newer", store.snapshot()["L1"].Title)

	outcome, err = h.OnDeleted(ctx, "L1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeStale, outcome)
	assert.Len(t, store.snapshot(), 1)

	outcome, err = h.OnDeleted(ctx, "L1", 3)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDeleted, outcome)
}

// ==========================
// Side effects
// ==========================

func TestHandler_InvalidatesCacheOnlyOnChange(t *testing.T) {
	store := newMemWriter()
	inv := &countingInvalidator{}
	h := NewHandler(store, logger.NewTestLogger(t), WithInvalidator(inv))
	ctx := context.Background()

	_, err := h.OnCreated(ctx, sampleListing())
	require.NoError(t, err)
	_, err = h.OnDeleted(ctx, "L1", 0)
	require.NoError(t, err)
	_, err = h.OnDeleted(ctx, "L1", 0)
	require.NoError(t, err)

	bad := sampleListing()
	bad.Price = -1
	_, _ = h.OnCreated(ctx, bad)

	assert.Equal(t, 2, inv.count)
}

func TestHandler_StoreErrorsPropagate(t *testing.T) {
	store := newMemWriter()
	store.failures = []error{apperrors.NewIndexWriteFailedError("L1", errors.New("mapper_parsing_exception"))}
	inv := &countingInvalidator{}
	h := NewHandler(store, logger.NewTestLogger(t), WithInvalidator(inv))

	_, err := h.OnCreated(context.Background(), sampleListing())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexWriteFailed))
	assert.Equal(t, 0, inv.count)
}

func TestSourceTagging(t *testing.T) {
	assert.Equal(t, "direct", SourceOf(context.Background()))
	assert.Equal(t, SourceKafka, SourceOf(WithSource(context.Background(), SourceKafka)))
}
