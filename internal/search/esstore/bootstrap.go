package esstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	apperrors "marketplace-search/internal/common/errors"
)

// ListingMapping is the explicit mapping of the listings index. The location
// field must be a geo_point for distance filtering and sorting to work.
const ListingMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0
  },
  "mappings": {
    "properties": {
      "listingId":   { "type": "keyword" },
      "sellerId":    { "type": "keyword" },
      "sellerName":  { "type": "text", "fields": { "raw": { "type": "keyword" } } },
      "title":       { "type": "text" },
      "description": { "type": "text" },
      "price":       { "type": "double" },
      "location":    { "type": "geo_point" },
      "status":      { "type": "keyword" },
      "dateCreated": { "type": "date" },
      "imageUrl":    { "type": "keyword", "index": false },
      "version":     { "type": "long" }
    }
  }
}`

// Bootstrap creates the index with ListingMapping when it does not exist.
// It reports whether the index was created by this call.
func (s *Store) Bootstrap(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	exists, err := s.client.Indices.Exists(
		[]string{s.config.Index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, transportError(ctx, "index exists", err)
	}
	exists.Body.Close()

	switch exists.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotFound:
	default:
		return false, apperrors.NewElasticsearchUnavailableError(
			fmt.Errorf("index exists: unexpected status %d", exists.StatusCode))
	}

	res, err := s.client.Indices.Create(
		s.config.Index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(ListingMapping)),
	)
	if err != nil {
		return false, transportError(ctx, "create index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		cause := readError(res)
		// Another instance won the race.
		if strings.Contains(cause.Error(), "resource_already_exists_exception") {
			return false, nil
		}
		return false, apperrors.NewSearchQueryFailedError("create index", cause)
	}
	return true, nil
}
