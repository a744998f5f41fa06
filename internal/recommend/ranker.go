package recommend

import (
	"context"
	"strings"

	"marketplace-search/internal/models"
	"marketplace-search/internal/search/gateway"
	"marketplace-search/internal/search/query"
)

const (
	// maxTerms bounds how many recent search terms feed the text query.
	maxTerms = 10
	// maxLikeDocs bounds how many clicked listings feed more_like_this.
	maxLikeDocs = 20
)

// ESRanker ranks available listings with Elasticsearch relevance: text match
// on recent search terms and similarity to clicked listings. Listings the
// caller stopped are never returned.
type ESRanker struct {
	store gateway.DocumentStore
}

func NewESRanker(store gateway.DocumentStore) *ESRanker {
	return &ESRanker{store: store}
}

func (r *ESRanker) Rank(ctx context.Context, signals Signals, page, limit int) ([]models.SearchResult, error) {
	raw, err := r.store.Search(ctx, RankBody(signals, page, limit))
	if err != nil {
		return nil, err
	}
	resp, err := gateway.ShapeHits(raw)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// RankBody builds the search body for one page of recommendations. With no
// signals it falls back to the newest available listings.
func RankBody(signals Signals, page, limit int) query.Clause {
	boolQuery := query.Clause{
		"filter": []query.Clause{
			{"term": query.Clause{query.StatusField: string(models.StatusAvailable)}},
		},
	}
	if len(signals.Excluded) > 0 {
		boolQuery["must_not"] = []query.Clause{
			{"ids": query.Clause{"values": signals.Excluded}},
		}
	}

	sort := []query.Clause{{query.ScoreField: query.Clause{"order": "desc"}}}

	should := make([]query.Clause, 0, 2)
	if terms := firstN(signals.SearchTerms, maxTerms); len(terms) > 0 {
		should = append(should, query.Clause{
			"multi_match": query.Clause{
				"query":  strings.Join(terms, " "),
				"fields": query.ListingTextFields,
			},
		})
	}
	if clicked := firstN(signals.ClickedListings, maxLikeDocs); len(clicked) > 0 {
		like := make([]query.Clause, 0, len(clicked))
		for _, id := range clicked {
			like = append(like, query.Clause{"_id": id})
		}
		should = append(should, query.Clause{
			"more_like_this": query.Clause{
				"fields":        query.ListingTextFields,
				"like":          like,
				"min_term_freq": 1,
				"min_doc_freq":  1,
			},
		})
	}

	if len(should) > 0 {
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = 1
	} else {
		sort = []query.Clause{{query.DateCreatedField: query.Clause{"order": "desc"}}}
	}

	return query.Clause{
		"from":  (page - 1) * limit,
		"size":  limit,
		"query": query.Clause{"bool": boolQuery},
		"sort":  sort,
	}
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
