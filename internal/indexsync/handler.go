// Package indexsync applies listing create, edit and delete events from the
// system of record to the search index.
package indexsync

import (
	"context"
	"math"
	"strings"
	"time"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/common/metrics"
	"marketplace-search/internal/common/validation"
	"marketplace-search/internal/models"
	"marketplace-search/pkg/registry"
)

// Writer is the document store write path.
type Writer interface {
	Upsert(ctx context.Context, listing *models.Listing) (models.WriteOutcome, error)
	Delete(ctx context.Context, listingID string, version int64) (models.WriteOutcome, error)
}

// Invalidator drops cached search results after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// SyncObserver receives one measurement per applied event.
type SyncObserver interface {
	RecordSync(ctx context.Context, event, outcome string)
}

type Handler struct {
	store    Writer
	cache    Invalidator
	observer SyncObserver
	logger   logger.Logger
}

type Option func(*Handler)

func WithInvalidator(c Invalidator) Option {
	return func(h *Handler) { h.cache = c }
}

func WithObserver(o SyncObserver) Option {
	return func(h *Handler) { h.observer = o }
}

func NewHandler(store Writer, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "index-sync"}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SourceHTTP tags events applied through the reindex endpoints.
const SourceHTTP = "http"

type sourceKey struct{}

// WithSource tags ctx with the transport an event arrived on.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceOf returns the transport tag of ctx, "direct" when untagged.
func SourceOf(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok {
		return s
	}
	return "direct"
}

// OnCreated indexes a new listing.
func (h *Handler) OnCreated(ctx context.Context, listing *models.Listing) (models.WriteOutcome, error) {
	return h.upsert(ctx, registry.EventListingCreated, listing)
}

// OnEdited overwrites a listing in place. It is the same write as OnCreated.
func (h *Handler) OnEdited(ctx context.Context, listing *models.Listing) (models.WriteOutcome, error) {
	return h.upsert(ctx, registry.EventListingEdited, listing)
}

// OnDeleted removes a listing. Deleting an unknown listing succeeds.
func (h *Handler) OnDeleted(ctx context.Context, listingID string, version int64) (models.WriteOutcome, error) {
	start := time.Now()
	if strings.TrimSpace(listingID) == "" {
		result := validation.NewResult()
		result.Add("listingId", "listingId is required", "REQUIRED")
		return h.finish(ctx, registry.EventListingDeleted, listingID, start, "",
			apperrors.NewValidationError("listingId is required", result.Errors))
	}

	outcome, err := h.store.Delete(ctx, listingID, version)
	return h.finish(ctx, registry.EventListingDeleted, listingID, start, outcome, err)
}

func (h *Handler) upsert(ctx context.Context, event string, listing *models.Listing) (models.WriteOutcome, error) {
	start := time.Now()
	if listing == nil {
		return h.finish(ctx, event, "", start, "", apperrors.NewValidationError("listing is required", nil))
	}
	if err := CheckListing(listing); err != nil {
		return h.finish(ctx, event, listing.ListingID, start, "", err)
	}

	outcome, err := h.store.Upsert(ctx, listing)
	return h.finish(ctx, event, listing.ListingID, start, outcome, err)
}

// CheckListing enforces the field invariants a listing must satisfy before
// it is written.
func CheckListing(listing *models.Listing) error {
	result := validation.NewResult()
	if strings.TrimSpace(listing.ListingID) == "" {
		result.Add("listingId", "listingId is required", "REQUIRED")
	}
	switch {
	case math.IsNaN(listing.Price) || math.IsInf(listing.Price, 0):
		result.Add("price", "price must be a finite number", "INVALID_NUMBER")
	case listing.Price < 0:
		result.Add("price", "price cannot be negative", "OUT_OF_RANGE")
	}
	if loc := listing.Location; math.IsNaN(loc.Lat) || math.IsNaN(loc.Lon) ||
		loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
		result.Add("location", "location must be a valid coordinate", "OUT_OF_RANGE")
	}
	if listing.Status != "" && !listing.Status.IsValid() {
		result.Add("status", "unknown status "+string(listing.Status), "INVALID_ENUM")
	}
	if listing.Version < 0 {
		result.Add("version", "version cannot be negative", "OUT_OF_RANGE")
	}

	if result.Valid {
		return nil
	}
	return apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "), result.Errors)
}

func (h *Handler) finish(ctx context.Context, event, listingID string, start time.Time, outcome models.WriteOutcome, err error) (models.WriteOutcome, error) {
	source := SourceOf(ctx)
	fields := map[string]interface{}{
		"event":     event,
		"listingId": listingID,
		"source":    source,
		"duration":  time.Since(start).String(),
	}

	label := string(outcome)
	if err != nil {
		stdErr := apperrors.Normalize(err)
		label = strings.ToLower(string(stdErr.Code))
		fields["errorCode"] = stdErr.Code
		fields["error"] = err
		h.logger.Warn("Listing sync rejected", fields)
	} else {
		fields["outcome"] = outcome
		h.logger.Info("Listing sync applied", fields)
		h.invalidate(ctx, outcome)
	}

	metrics.SyncEvents.WithLabelValues(event, source, label).Inc()
	if h.observer != nil {
		h.observer.RecordSync(ctx, event, label)
	}
	return outcome, err
}

func (h *Handler) invalidate(ctx context.Context, outcome models.WriteOutcome) {
	if h.cache == nil || outcome == models.OutcomeStale || outcome == models.OutcomeAbsent {
		return
	}
	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("Search cache invalidation failed", map[string]interface{}{"error": err})
	}
}
