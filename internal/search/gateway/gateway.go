// Package gateway orchestrates a search: validate, compile, execute, shape,
// and record the search term for the caller.
package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/common/metrics"
	"marketplace-search/internal/models"
	"marketplace-search/internal/search/query"
)

// DocumentStore executes one compiled search body.
type DocumentStore interface {
	Search(ctx context.Context, body map[string]interface{}) (*models.RawSearchResult, error)
}

// HistoryRecorder appends a search term to the caller's history.
type HistoryRecorder interface {
	RecordSearch(ctx context.Context, userID, term string) error
}

// ResultCache stores shaped responses keyed by compiled body.
type ResultCache interface {
	Key(ctx context.Context, body map[string]interface{}) (string, error)
	Get(ctx context.Context, key string) (*models.SearchResponse, bool)
	Set(ctx context.Context, key string, resp *models.SearchResponse)
}

// Observer receives spans and search measurements.
type Observer interface {
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)
	RecordSearch(ctx context.Context, duration time.Duration, searchType, outcome string)
}

type Config struct {
	Radius         string
	DefaultLimit   int
	MaxLimit       int
	HistoryTimeout time.Duration
}

type Gateway struct {
	store    DocumentStore
	history  HistoryRecorder
	cache    ResultCache
	observer Observer
	config   Config
	logger   logger.Logger

	flight  singleflight.Group
	pending sync.WaitGroup
}

type Option func(*Gateway)

func WithCache(c ResultCache) Option {
	return func(g *Gateway) { g.cache = c }
}

func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

func New(store DocumentStore, history HistoryRecorder, config Config, log logger.Logger, opts ...Option) *Gateway {
	if config.Radius == "" {
		config.Radius = "1000km"
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 20
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = 100
	}
	if config.HistoryTimeout <= 0 {
		config.HistoryTimeout = 2 * time.Second
	}

	g := &Gateway{
		store:   store,
		history: history,
		config:  config,
		logger:  log.WithFields(map[string]interface{}{"component": "search-gateway"}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DefaultLimit is the page size used when the caller gives none.
func (g *Gateway) DefaultLimit() int {
	return g.config.DefaultLimit
}

// Search runs one search request. Invalid requests fail before the document
// store is contacted. The history write never affects the response.
func (g *Gateway) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()
	applyDefaults(req)

	var span trace.Span
	if g.observer != nil {
		ctx, span = g.observer.StartSpan(ctx, "search",
			attribute.String("search.type", string(req.SearchType)),
			attribute.String("search.sort", string(req.Sort)),
			attribute.Int("search.page", req.Page),
		)
		defer span.End()
	}

	resp, err := g.search(ctx, req)
	g.record(ctx, req, time.Since(start), err)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperrors.Normalize(err).Code))
		}
		return nil, err
	}

	g.recordHistory(ctx, req)
	return resp, nil
}

func (g *Gateway) search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if err := Validate(req, g.config.MaxLimit); err != nil {
		return nil, err
	}

	body, err := query.Build(req, query.Options{Radius: g.config.Radius})
	if err != nil {
		return nil, compileError(req, err)
	}

	if g.cache == nil {
		return g.execute(ctx, body)
	}

	key, err := g.cache.Key(ctx, body)
	if err != nil {
		g.logger.Warn("Search cache unavailable", map[string]interface{}{"error": err})
		return g.execute(ctx, body)
	}
	if cached, ok := g.cache.Get(ctx, key); ok {
		return cached, nil
	}

	// The shared execution outlives any single caller; the store bounds it
	// with its own timeout.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(key, func() (interface{}, error) {
		resp, err := g.execute(flightCtx, body)
		if err != nil {
			return nil, err
		}
		g.cache.Set(flightCtx, key, resp)
		return resp, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.SearchResponse), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewSearchTimeoutError("search")
		}
		return nil, ctx.Err()
	}
}

func (g *Gateway) execute(ctx context.Context, body map[string]interface{}) (*models.SearchResponse, error) {
	raw, err := g.store.Search(ctx, body)
	if err != nil {
		return nil, err
	}
	return ShapeHits(raw)
}

func compileError(req *models.SearchRequest, err error) error {
	switch {
	case errors.Is(err, query.ErrInvalidSearchTarget):
		return apperrors.NewInvalidSearchTargetError(string(req.SearchType))
	case errors.Is(err, query.ErrInvalidSort):
		return apperrors.NewValidationError(err.Error(), nil)
	default:
		return apperrors.NewInternalError(err)
	}
}

// recordHistory writes the search term in the background. Anonymous callers
// have no history.
func (g *Gateway) recordHistory(ctx context.Context, req *models.SearchRequest) {
	if g.history == nil || req.CallerID == "" {
		return
	}

	userID, term := req.CallerID, req.Query
	g.pending.Add(1)
	go func() {
		defer g.pending.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.config.HistoryTimeout)
		defer cancel()

		if err := g.history.RecordSearch(ctx, userID, term); err != nil {
			metrics.HistoryWriteFailures.Inc()
			g.logger.Warn("Failed to record search history", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}()
}

// Wait blocks until all background history writes have finished.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

func (g *Gateway) record(ctx context.Context, req *models.SearchRequest, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(apperrors.Normalize(err).Code))
		g.logger.Debug("Search failed", map[string]interface{}{
			"searchType": req.SearchType,
			"error":      err,
		})
	}

	searchType := string(req.SearchType)
	if !req.SearchType.IsValid() {
		searchType = "invalid"
	}

	metrics.SearchRequests.WithLabelValues(searchType, outcome).Inc()
	metrics.SearchDuration.WithLabelValues(searchType).Observe(elapsed.Seconds())
	if g.observer != nil {
		g.observer.RecordSearch(ctx, elapsed, searchType, outcome)
	}
}
