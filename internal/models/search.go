// internal/models/search.go
package models

import "time"

type SearchRequest struct {
	Query      string
	Latitude   float64
	Longitude  float64
	Page       int
	Limit      int
	MinPrice   *float64
	MaxPrice   *float64
	Status     Status
	SearchType SearchType
	Sort       SortPolicy

	// CallerID is empty for anonymous callers.
	CallerID string
}

// Offset is the zero-based index of the first hit on the requested page.
func (r *SearchRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

type SearchResult struct {
	ListingID   string    `json:"listingID"`
	SellerID    string    `json:"sellerID"`
	SellerName  string    `json:"sellerName"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	DateCreated time.Time `json:"dateCreated"`
	ImageURL    string    `json:"imageUrl"`
}

type SearchResponse struct {
	Items      []SearchResult `json:"items"`
	TotalItems int64          `json:"totalItems"`
}
