package gateway

import (
	"fmt"
	"math"
	"strings"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/validation"
	"marketplace-search/internal/models"
)

// applyDefaults fills enum fields left at their zero value.
func applyDefaults(req *models.SearchRequest) {
	if req.Status == "" {
		req.Status = models.StatusAvailable
	}
	if req.SearchType == "" {
		req.SearchType = models.SearchTypeListings
	}
	if req.Sort == "" {
		req.Sort = models.SortRelevance
	}
}

// Validate checks every request field and collects all violations into a
// single VALIDATION_ERROR.
func Validate(req *models.SearchRequest, maxLimit int) error {
	result := validation.NewResult()

	if strings.TrimSpace(req.Query) == "" {
		result.Add("query", "query is required", "REQUIRED")
	}
	if math.IsNaN(req.Latitude) || req.Latitude < -90 || req.Latitude > 90 {
		result.Add("latitude", "latitude must be between -90 and 90", "OUT_OF_RANGE")
	}
	if math.IsNaN(req.Longitude) || req.Longitude < -180 || req.Longitude > 180 {
		result.Add("longitude", "longitude must be between -180 and 180", "OUT_OF_RANGE")
	}
	if req.Page < 1 {
		result.Add("page", "page must be at least 1", "OUT_OF_RANGE")
	}
	if req.Limit < 1 || req.Limit > maxLimit {
		result.Add("limit", fmt.Sprintf("limit must be between 1 and %d", maxLimit), "OUT_OF_RANGE")
	}
	minOK := checkPrice(result, "minPrice", req.MinPrice)
	maxOK := checkPrice(result, "maxPrice", req.MaxPrice)
	if minOK && maxOK && req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		result.Add("minPrice", "minPrice must not exceed maxPrice", "INVALID_RANGE")
	}
	if !req.Status.IsValid() {
		result.Add("status", fmt.Sprintf("unknown status %q", req.Status), "INVALID_ENUM")
	}
	if !req.SearchType.IsValid() {
		result.Add("searchType", fmt.Sprintf("unknown searchType %q", req.SearchType), "INVALID_ENUM")
	}
	if !req.Sort.IsValid() {
		result.Add("sort", fmt.Sprintf("unknown sort %q", req.Sort), "INVALID_ENUM")
	}

	if result.Valid {
		return nil
	}
	return apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "), result.Errors)
}

// checkPrice reports whether an optional price bound is usable.
func checkPrice(result *validation.ValidationResult, field string, price *float64) bool {
	switch {
	case price == nil:
		return true
	case math.IsNaN(*price) || math.IsInf(*price, 0):
		result.Add(field, field+" must be a finite number", "INVALID_NUMBER")
	case *price < 0:
		result.Add(field, field+" must be non-negative", "OUT_OF_RANGE")
	default:
		return true
	}
	return false
}
