// Package esstore is the Elasticsearch-backed listing document store.
package esstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/models"
)

type Config struct {
	Index string
	// Timeout bounds every call to Elasticsearch.
	Timeout time.Duration
	// Refresh is passed to index and delete calls ("true", "false", "wait_for").
	Refresh string
}

type Store struct {
	client *elasticsearch.Client
	config Config
}

func New(client *elasticsearch.Client, config Config) *Store {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Refresh == "" {
		config.Refresh = "false"
	}
	return &Store{client: client, config: config}
}

// Index returns the name of the target index.
func (s *Store) Index() string {
	return s.config.Index
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []models.RawHit `json:"hits"`
	} `json:"hits"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// Search runs one search request body against the index.
func (s *Store) Search(ctx context.Context, body map[string]interface{}) (*models.RawSearchResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("encode search body: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.config.Index),
		s.client.Search.WithBody(bytes.NewReader(payload)),
		s.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, transportError(ctx, "search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return nil, apperrors.NewIndexNotFoundError(s.config.Index)
		}
		return nil, responseError("search", res)
	}

	var decoded searchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, apperrors.NewSearchQueryFailedError("search", fmt.Errorf("decode response: %w", err))
	}

	return &models.RawSearchResult{
		Total: decoded.Hits.Total.Value,
		Hits:  decoded.Hits.Hits,
		Took:  decoded.Took,
	}, nil
}

// Upsert writes the listing under its identifier, replacing any previous
// document. A positive Version enables external versioning; an older or equal
// version is reported as OutcomeStale without error.
func (s *Store) Upsert(ctx context.Context, listing *models.Listing) (models.WriteOutcome, error) {
	payload, err := json.Marshal(listing)
	if err != nil {
		return "", apperrors.NewInternalError(fmt.Errorf("encode listing: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	opts := []func(*esapi.IndexRequest){
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(listing.ListingID),
		s.client.Index.WithRefresh(s.config.Refresh),
	}
	if listing.Version > 0 {
		opts = append(opts,
			s.client.Index.WithVersion(int(listing.Version)),
			s.client.Index.WithVersionType("external"),
		)
	}

	res, err := s.client.Index(s.config.Index, bytes.NewReader(payload), opts...)
	if err != nil {
		return "", transportError(ctx, "index", err)
	}
	defer res.Body.Close()

	switch {
	case !res.IsError():
		return models.OutcomeIndexed, nil
	case res.StatusCode == http.StatusConflict && listing.Version > 0:
		return models.OutcomeStale, nil
	case res.StatusCode == http.StatusNotFound:
		return "", apperrors.NewIndexNotFoundError(s.config.Index)
	default:
		return "", writeError(listing.ListingID, res)
	}
}

// Delete removes a listing. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, listingID string, version int64) (models.WriteOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	opts := []func(*esapi.DeleteRequest){
		s.client.Delete.WithContext(ctx),
		s.client.Delete.WithRefresh(s.config.Refresh),
	}
	if version > 0 {
		opts = append(opts,
			s.client.Delete.WithVersion(int(version)),
			s.client.Delete.WithVersionType("external"),
		)
	}

	res, err := s.client.Delete(s.config.Index, listingID, opts...)
	if err != nil {
		return "", transportError(ctx, "delete", err)
	}
	defer res.Body.Close()

	switch {
	case !res.IsError():
		return models.OutcomeDeleted, nil
	case res.StatusCode == http.StatusNotFound:
		return models.OutcomeAbsent, nil
	case res.StatusCode == http.StatusConflict && version > 0:
		return models.OutcomeStale, nil
	default:
		return "", writeError(listingID, res)
	}
}

// Get fetches a single listing. It returns (nil, nil) when the document does not exist.
func (s *Store) Get(ctx context.Context, listingID string) (*models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	res, err := s.client.Get(s.config.Index, listingID, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, transportError(ctx, "get", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, responseError("get", res)
	}

	var doc struct {
		Source models.Listing `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, apperrors.NewSearchQueryFailedError("get", fmt.Errorf("decode response: %w", err))
	}
	return &doc.Source, nil
}

// Ping reports whether the cluster answers.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return transportError(ctx, "ping", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewElasticsearchUnavailableError(fmt.Errorf("ping: %s", res.Status()))
	}
	return nil
}

func transportError(ctx context.Context, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewSearchTimeoutError(operation)
	}
	return apperrors.NewElasticsearchUnavailableError(fmt.Errorf("%s: %w", operation, err))
}

func readError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Type != "" {
		return fmt.Errorf("[%d] %s: %s", res.StatusCode, decoded.Error.Type, decoded.Error.Reason)
	}
	return fmt.Errorf("[%d] %s", res.StatusCode, bytes.TrimSpace(body))
}

func responseError(operation string, res *esapi.Response) error {
	err := readError(res)
	if unavailable(res.StatusCode) {
		return apperrors.NewElasticsearchUnavailableError(fmt.Errorf("%s: %w", operation, err))
	}
	return apperrors.NewSearchQueryFailedError(operation, err)
}

func writeError(listingID string, res *esapi.Response) error {
	err := readError(res)
	if unavailable(res.StatusCode) {
		return apperrors.NewElasticsearchUnavailableError(fmt.Errorf("write %s: %w", listingID, err))
	}
	return apperrors.NewIndexWriteFailedError(listingID, err)
}

func unavailable(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

