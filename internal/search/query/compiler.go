// Package query compiles validated search requests into Elasticsearch request
// bodies. Everything here is pure: no I/O and no shared state.
package query

import (
	"errors"
	"fmt"

	"marketplace-search/internal/models"
)

var (
	ErrInvalidSearchTarget = errors.New("INVALID_SEARCH_TARGET")
	ErrInvalidSort         = errors.New("INVALID_SORT")
)

// Clause is one node of an Elasticsearch query DSL document.
type Clause = map[string]interface{}

const (
	SellerNameField = "sellerName"
	StatusField     = "status"
	PriceField      = "price"
	LocationField   = "location"
)

// ListingTextFields are the fields a LISTINGS query is matched against.
var ListingTextFields = []string{"title", "description"}

type Options struct {
	// Radius is the geo filter distance around the caller, e.g. "1000km".
	Radius string
}

// Compiled is the boolean part of a search query.
type Compiled struct {
	Must   []Clause
	Filter []Clause
}

// Compile builds the must and filter clauses for a request. Exactly one geo
// radius filter is always present.
func Compile(req *models.SearchRequest, opts Options) (*Compiled, error) {
	must, err := mustClauses(req)
	if err != nil {
		return nil, err
	}

	filter := make([]Clause, 0, 2)
	if r := priceRange(req.MinPrice, req.MaxPrice); r != nil {
		filter = append(filter, Clause{"range": Clause{PriceField: r}})
	}
	filter = append(filter, Clause{
		"geo_distance": Clause{
			"distance":    opts.Radius,
			LocationField: geoPoint(req.Latitude, req.Longitude),
		},
	})

	return &Compiled{Must: must, Filter: filter}, nil
}

func mustClauses(req *models.SearchRequest) ([]Clause, error) {
	status := Clause{"match": Clause{StatusField: string(req.Status)}}

	switch req.SearchType {
	case models.SearchTypeListings:
		return []Clause{
			{"multi_match": Clause{"query": req.Query, "fields": ListingTextFields}},
			status,
		}, nil
	case models.SearchTypeUsers:
		return []Clause{
			{"match": Clause{SellerNameField: req.Query}},
			status,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSearchTarget, req.SearchType)
	}
}

// priceRange is open-ended on whichever bound is missing.
func priceRange(min, max *float64) Clause {
	if min == nil && max == nil {
		return nil
	}
	r := Clause{}
	if min != nil {
		r["gte"] = *min
	}
	if max != nil {
		r["lte"] = *max
	}
	return r
}

func geoPoint(lat, lon float64) Clause {
	return Clause{"lat": lat, "lon": lon}
}

// Query wraps the clauses into a bool query.
func (c *Compiled) Query() Clause {
	return Clause{
		"bool": Clause{
			"must":   c.Must,
			"filter": c.Filter,
		},
	}
}

// Body merges a compiled query, its sort clauses and pagination into one
// search request body.
func Body(c *Compiled, sort []Clause, from, size int) Clause {
	return Clause{
		"from":  from,
		"size":  size,
		"query": c.Query(),
		"sort":  sort,
	}
}

// Build compiles the query and sort for a request and applies pagination.
func Build(req *models.SearchRequest, opts Options) (Clause, error) {
	compiled, err := Compile(req, opts)
	if err != nil {
		return nil, err
	}
	sort, err := ResolveSort(req.Sort, models.GeoPoint{Lat: req.Latitude, Lon: req.Longitude})
	if err != nil {
		return nil, err
	}
	return Body(compiled, sort, req.Offset(), req.Limit), nil
}
