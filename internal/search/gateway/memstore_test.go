package gateway

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"marketplace-search/internal/models"
)

// memStore is a document store that evaluates compiled search bodies against
// an in-memory set of listings. It understands the subset of the query DSL the
// compiler emits.
type memStore struct {
	mu    sync.Mutex
	docs  map[string]models.Listing
	calls int
	err   error
}

func newMemStore(listings ...models.Listing) *memStore {
	s := &memStore{docs: map[string]models.Listing{}}
	for _, l := range listings {
		s.docs[l.ListingID] = l
	}
	return s
}

func (s *memStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type searchBody struct {
	From  int `json:"from"`
	Size  int `json:"size"`
	Query struct {
		Bool struct {
			Must   []map[string]json.RawMessage `json:"must"`
			Filter []map[string]json.RawMessage `json:"filter"`
		} `json:"bool"`
	} `json:"query"`
	Sort []map[string]json.RawMessage `json:"sort"`
}

type scored struct {
	doc   models.Listing
	score float64
}

func (s *memStore) Search(_ context.Context, body map[string]interface{}) (*models.RawSearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var parsed searchBody
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, err
	}

	var matched []scored
	for _, doc := range s.docs {
		score, ok := matchAll(doc, parsed.Query.Bool.Must)
		if !ok || !filterAll(doc, parsed.Query.Bool.Filter) {
			continue
		}
		matched = append(matched, scored{doc: doc, score: score})
	}

	// Stable base order so tie ordering is reproducible within the fake.
	sort.Slice(matched, func(i, j int) bool { return matched[i].doc.ListingID < matched[j].doc.ListingID })
	for _, clause := range parsed.Sort {
		sortBy(matched, clause)
	}

	result := &models.RawSearchResult{Total: int64(len(matched))}
	for i := parsed.From; i < len(matched) && i < parsed.From+parsed.Size; i++ {
		src, _ := json.Marshal(matched[i].doc)
		score := matched[i].score
		result.Hits = append(result.Hits, models.RawHit{ID: matched[i].doc.ListingID, Score: &score, Source: src})
	}
	return result, nil
}

func tokens(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func tokenMatches(queryText, fieldText string) int {
	fieldTokens := map[string]bool{}
	for _, t := range tokens(fieldText) {
		fieldTokens[strings.Trim(t, ".,!?")] = true
	}
	n := 0
	for _, t := range tokens(queryText) {
		if fieldTokens[t] {
			n++
		}
	}
	return n
}

func fieldText(doc models.Listing, field string) string {
	switch field {
	case "title":
		return doc.Title
	case "description":
		return doc.Description
	case "sellerName":
		return doc.SellerName
	case "status":
		return string(doc.Status)
	}
	return ""
}

func matchAll(doc models.Listing, must []map[string]json.RawMessage) (float64, bool) {
	var score float64
	for _, clause := range must {
		if raw, ok := clause["multi_match"]; ok {
			var mm struct {
				Query  string   `json:"query"`
				Fields []string `json:"fields"`
			}
			_ = json.Unmarshal(raw, &mm)
			hits := 0
			for _, f := range mm.Fields {
				hits += tokenMatches(mm.Query, fieldText(doc, f))
			}
			if hits == 0 {
				return 0, false
			}
			score += float64(hits)
		}
		if raw, ok := clause["match"]; ok {
			var m map[string]string
			_ = json.Unmarshal(raw, &m)
			for field, value := range m {
				hits := tokenMatches(value, fieldText(doc, field))
				if hits == 0 {
					return 0, false
				}
				score += float64(hits)
			}
		}
	}
	return score, true
}

func filterAll(doc models.Listing, filter []map[string]json.RawMessage) bool {
	for _, clause := range filter {
		if raw, ok := clause["range"]; ok {
			var r map[string]map[string]float64
			_ = json.Unmarshal(raw, &r)
			bounds := r["price"]
			if gte, ok := bounds["gte"]; ok && doc.Price < gte {
				return false
			}
			if lte, ok := bounds["lte"]; ok && doc.Price > lte {
				return false
			}
		}
		if raw, ok := clause["geo_distance"]; ok {
			var g struct {
				Distance string          `json:"distance"`
				Location models.GeoPoint `json:"location"`
			}
			_ = json.Unmarshal(raw, &g)
			radius, _ := strconv.ParseFloat(strings.TrimSuffix(g.Distance, "km"), 64)
			if haversineKm(g.Location, doc.Location) > radius {
				return false
			}
		}
	}
	return true
}

func sortBy(matched []scored, clause map[string]json.RawMessage) {
	for field, raw := range clause {
		var opts struct {
			Order    string          `json:"order"`
			Location models.GeoPoint `json:"location"`
		}
		_ = json.Unmarshal(raw, &opts)
		desc := opts.Order == "desc"

		key := func(s scored) float64 {
			switch field {
			case "_score":
				return s.score
			case "price":
				return s.doc.Price
			case "dateCreated":
				return float64(s.doc.DateCreated.Unix())
			case "_geo_distance":
				return haversineKm(opts.Location, s.doc.Location)
			}
			return 0
		}
		sort.SliceStable(matched, func(i, j int) bool {
			if desc {
				return key(matched[i]) > key(matched[j])
			}
			return key(matched[i]) < key(matched[j])
		})
	}
}

func haversineKm(a, b models.GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
