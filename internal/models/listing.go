// internal/models/listing.go
package models

import (
	"encoding/json"
	"time"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Listing is the indexed projection of a marketplace listing.
// Version is optional; when positive it orders writes for the same listing.
type Listing struct {
	ListingID   string    `json:"listingId"`
	SellerID    string    `json:"sellerId"`
	SellerName  string    `json:"sellerName"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Location    GeoPoint  `json:"location"`
	Status      Status    `json:"status"`
	DateCreated time.Time `json:"dateCreated"`
	ImageURL    string    `json:"imageUrl"`
	Version     int64     `json:"version,omitempty"`
}

// RawHit is a single matched document as returned by the document store.
type RawHit struct {
	ID     string          `json:"_id"`
	Score  *float64        `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

// RawSearchResult carries the hits of one page and the store-reported total.
type RawSearchResult struct {
	Total int64
	Hits  []RawHit
	Took  int64
}

// WriteOutcome reports what a document-store write did.
type WriteOutcome string

const (
	OutcomeIndexed WriteOutcome = "indexed"
	OutcomeDeleted WriteOutcome = "deleted"
	// OutcomeAbsent is a delete of a document that did not exist.
	OutcomeAbsent WriteOutcome = "absent"
	// OutcomeStale is a versioned write older than the stored document.
	OutcomeStale WriteOutcome = "stale"
)
