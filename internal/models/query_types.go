// internal/models/query_types.go
package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a listing.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusSold      Status = "SOLD"
)

// SearchType selects which listing fields the free-text query is matched against.
type SearchType string

const (
	SearchTypeListings SearchType = "LISTINGS"
	SearchTypeUsers    SearchType = "USERS"
)

// SortPolicy is the requested result ordering.
type SortPolicy string

const (
	SortRelevance      SortPolicy = "RELEVANCE"
	SortPriceAsc       SortPolicy = "PRICE_ASC"
	SortPriceDesc      SortPolicy = "PRICE_DESC"
	SortListedTimeAsc  SortPolicy = "LISTED_TIME_ASC"
	SortListedTimeDesc SortPolicy = "LISTED_TIME_DESC"
	SortDistanceAsc    SortPolicy = "DISTANCE_ASC"
	SortDistanceDesc   SortPolicy = "DISTANCE_DESC"
)

var (
	statuses     = []Status{StatusAvailable, StatusSold}
	searchTypes  = []SearchType{SearchTypeListings, SearchTypeUsers}
	sortPolicies = []SortPolicy{
		SortRelevance,
		SortPriceAsc, SortPriceDesc,
		SortListedTimeAsc, SortListedTimeDesc,
		SortDistanceAsc, SortDistanceDesc,
	}
)

func (s Status) IsValid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (t SearchType) IsValid() bool {
	for _, v := range searchTypes {
		if t == v {
			return true
		}
	}
	return false
}

func (p SortPolicy) IsValid() bool {
	for _, v := range sortPolicies {
		if p == v {
			return true
		}
	}
	return false
}

// IsDistance reports whether the policy orders by distance from the caller.
func (p SortPolicy) IsDistance() bool {
	return p == SortDistanceAsc || p == SortDistanceDesc
}

// Ascending reports the sort direction encoded in the policy suffix.
// RELEVANCE is always descending.
func (p SortPolicy) Ascending() bool {
	return strings.HasSuffix(string(p), "_ASC")
}

// ParseStatus returns the default status for an empty value.
func ParseStatus(raw string) (Status, error) {
	if raw == "" {
		return StatusAvailable, nil
	}
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// ParseSearchType returns the default search type for an empty value.
func ParseSearchType(raw string) (SearchType, error) {
	if raw == "" {
		return SearchTypeListings, nil
	}
	t := SearchType(raw)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown searchType %q", raw)
	}
	return t, nil
}

// ParseSortPolicy returns the default sort policy for an empty value.
func ParseSortPolicy(raw string) (SortPolicy, error) {
	if raw == "" {
		return SortRelevance, nil
	}
	p := SortPolicy(raw)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown sort %q", raw)
	}
	return p, nil
}
