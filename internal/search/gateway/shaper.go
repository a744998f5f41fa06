package gateway

import (
	"encoding/json"
	"fmt"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/models"
)

// ShapeHits maps raw hits to public results in store order. TotalItems is the
// store-reported match count, not the number of hits on the page.
func ShapeHits(raw *models.RawSearchResult) (*models.SearchResponse, error) {
	items := make([]models.SearchResult, 0, len(raw.Hits))
	for _, hit := range raw.Hits {
		var doc models.Listing
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, apperrors.NewSearchQueryFailedError("shape",
				fmt.Errorf("decode hit %s: %w", hit.ID, err))
		}
		items = append(items, toResult(&doc))
	}
	return &models.SearchResponse{Items: items, TotalItems: raw.Total}, nil
}

func toResult(doc *models.Listing) models.SearchResult {
	return models.SearchResult{
		ListingID:   doc.ListingID,
		SellerID:    doc.SellerID,
		SellerName:  doc.SellerName,
		Title:       doc.Title,
		Description: doc.Description,
		Price:       doc.Price,
		DateCreated: doc.DateCreated,
		ImageURL:    doc.ImageURL,
	}
}
