package query

import (
	"fmt"

	"marketplace-search/internal/models"
)

const (
	ScoreField       = "_score"
	DateCreatedField = "dateCreated"
	DistanceUnit     = "km"
)

// ResolveSort maps a sort policy to exactly one sort clause. Ties are broken by
// Elasticsearch and their order is unspecified.
func ResolveSort(policy models.SortPolicy, origin models.GeoPoint) ([]Clause, error) {
	if policy.IsDistance() {
		return []Clause{{
			"_geo_distance": Clause{
				LocationField: geoPoint(origin.Lat, origin.Lon),
				"order":       direction(policy),
				"unit":        DistanceUnit,
			},
		}}, nil
	}

	var field string
	switch policy {
	case models.SortRelevance:
		return []Clause{{ScoreField: Clause{"order": "desc"}}}, nil
	case models.SortPriceAsc, models.SortPriceDesc:
		field = PriceField
	case models.SortListedTimeAsc, models.SortListedTimeDesc:
		field = DateCreatedField
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSort, policy)
	}

	return []Clause{{field: Clause{"order": direction(policy)}}}, nil
}

func direction(policy models.SortPolicy) string {
	if policy.Ascending() {
		return "asc"
	}
	return "desc"
}
