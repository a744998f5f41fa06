// Package api is the HTTP surface of the search service.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/common/validation"
	"marketplace-search/internal/indexsync"
	"marketplace-search/internal/models"
	"marketplace-search/pkg/registry"
)

type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	DefaultLimit() int
}

type Syncer interface {
	OnCreated(ctx context.Context, listing *models.Listing) (models.WriteOutcome, error)
	OnEdited(ctx context.Context, listing *models.Listing) (models.WriteOutcome, error)
	OnDeleted(ctx context.Context, listingID string, version int64) (models.WriteOutcome, error)
}

type Recommender interface {
	Recommend(ctx context.Context, userID string, page, limit int) ([]models.SearchResult, error)
	StopSuggesting(ctx context.Context, userID, listingID string) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	search    Searcher
	sync      Syncer
	decoder   *indexsync.Decoder
	recommend Recommender
	ready     Pinger
	logger    logger.Logger
}

func NewHandler(search Searcher, sync Syncer, decoder *indexsync.Decoder, recommend Recommender, ready Pinger, log logger.Logger) *Handler {
	return &Handler{
		search:    search,
		sync:      sync,
		decoder:   decoder,
		recommend: recommend,
		ready:     ready,
		logger:    log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

// ==========================
// Search
// ==========================

func (h *Handler) Search(c *gin.Context) {
	req, err := h.parseSearchRequest(c)
	if err != nil {
		c.Error(err)
		return
	}
	req.CallerID = CallerID(c)

	resp, err := h.search.Search(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) parseSearchRequest(c *gin.Context) (*models.SearchRequest, error) {
	result := validation.NewResult()
	req := &models.SearchRequest{Query: c.Query("query")}

	req.Latitude = requiredFloat(c, result, "latitude")
	req.Longitude = requiredFloat(c, result, "longitude")
	req.Page = intParam(c, result, "page", 1)
	req.Limit = intParam(c, result, "limit", h.search.DefaultLimit())
	req.MinPrice = optionalFloat(c, result, "minPrice")
	req.MaxPrice = optionalFloat(c, result, "maxPrice")

	var err error
	if req.Status, err = models.ParseStatus(c.Query("status")); err != nil {
		result.Add("status", err.Error(), "INVALID_ENUM")
	}
	if req.SearchType, err = models.ParseSearchType(c.Query("searchType")); err != nil {
		result.Add("searchType", err.Error(), "INVALID_ENUM")
	}
	if req.Sort, err = models.ParseSortPolicy(c.Query("sort")); err != nil {
		result.Add("sort", err.Error(), "INVALID_ENUM")
	}

	if !result.Valid {
		return nil, apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "), result.Errors)
	}
	return req, nil
}

func requiredFloat(c *gin.Context, result *validation.ValidationResult, name string) float64 {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		result.Add(name, name+" is required", "REQUIRED")
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		result.Add(name, name+" must be a number", "INVALID_TYPE")
	}
	return v
}

func optionalFloat(c *gin.Context, result *validation.ValidationResult, name string) *float64 {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		result.Add(name, name+" must be a number", "INVALID_TYPE")
		return nil
	}
	return &v
}

func intParam(c *gin.Context, result *validation.ValidationResult, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		result.Add(name, name+" must be an integer", "INVALID_TYPE")
	}
	return v
}

// ==========================
// Reindex
// ==========================

func (h *Handler) ListingCreated(c *gin.Context) {
	h.upsert(c, registry.EventListingCreated, h.sync.OnCreated, "Listing added successfully.")
}

func (h *Handler) ListingEdited(c *gin.Context) {
	h.upsert(c, registry.EventListingEdited, h.sync.OnEdited, "Listing edited successfully.")
}

func (h *Handler) upsert(
	c *gin.Context,
	event string,
	apply func(context.Context, *models.Listing) (models.WriteOutcome, error),
	message string,
) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(apperrors.NewValidationError("unreadable request body", nil))
		return
	}
	listing, err := h.decoder.DecodeListing(event, body)
	if err != nil {
		c.Error(err)
		return
	}

	ctx := indexsync.WithSource(c.Request.Context(), indexsync.SourceHTTP)
	if _, err := apply(ctx, listing); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: message})
}

func (h *Handler) ListingDeleted(c *gin.Context) {
	result := validation.NewResult()
	listingID := strings.TrimSpace(c.Query("listingId"))
	if listingID == "" {
		result.Add("listingId", "listingId is required", "REQUIRED")
	}
	var version int64
	if raw := c.Query("version"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			result.Add("version", "version must be a non-negative integer", "INVALID_TYPE")
		}
		version = v
	}
	if !result.Valid {
		c.Error(apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "), result.Errors))
		return
	}

	ctx := indexsync.WithSource(c.Request.Context(), indexsync.SourceHTTP)
	if _, err := h.sync.OnDeleted(ctx, listingID, version); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Listing deleted successfully."})
}

// ==========================
// Recommendations
// ==========================

func (h *Handler) Recommendations(c *gin.Context) {
	result := validation.NewResult()
	page := intParam(c, result, "page", 1)
	limit := intParam(c, result, "limit", h.search.DefaultLimit())
	if !result.Valid {
		c.Error(apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "), result.Errors))
		return
	}

	items, err := h.recommend.Recommend(c.Request.Context(), CallerID(c), page, limit)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) StopSuggesting(c *gin.Context) {
	if err := h.recommend.StopSuggesting(c.Request.Context(), CallerID(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Preference updated successfully."})
}

// ==========================
// Health
// ==========================

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Ready(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("Readiness check failed", map[string]interface{}{"error": err.Error()})
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
