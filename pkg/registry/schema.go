// pkg/registry/schema.go
package registry

// EventRegistry describes every listing event the index sync path accepts.
type EventRegistry struct {
	Version     string            `json:"version"`
	LastUpdated string            `json:"lastUpdated"`
	Events      []EventDefinition `json:"events"`
}

type EventDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	TaskType    string                 `json:"taskType"`
	Method      string                 `json:"method"`
	Route       string                 `json:"route"`
	Schema      map[string]interface{} `json:"schema"`
	ErrorCodes  []string               `json:"errorCodes"`
	Retries     int                    `json:"retries"`
}

const (
	EventListingCreated = "listing-created"
	EventListingEdited  = "listing-edited"
	EventListingDeleted = "listing-deleted"
)

func listingSchema() map[string]interface{} {
	coordinate := func(min, max float64) map[string]interface{} {
		return map[string]interface{}{"type": "number", "minimum": min, "maximum": max}
	}
	return map[string]interface{}{
		"type": "object",
		"required": []interface{}{
			"listingId", "sellerId", "sellerName", "title", "description",
			"price", "location", "status", "dateCreated", "imageUrl",
		},
		"properties": map[string]interface{}{
			"listingId":   map[string]interface{}{"type": "string", "minLength": 1},
			"sellerId":    map[string]interface{}{"type": "string", "minLength": 1},
			"sellerName":  map[string]interface{}{"type": "string"},
			"title":       map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
			"price":       map[string]interface{}{"type": "number"},
			"location": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"lat", "lon"},
				"properties": map[string]interface{}{
					"lat": coordinate(-90, 90),
					"lon": coordinate(-180, 180),
				},
			},
			"status":      map[string]interface{}{"type": "string", "enum": []interface{}{"AVAILABLE", "SOLD"}},
			"dateCreated": map[string]interface{}{"type": "string", "format": "date-time"},
			"imageUrl":    map[string]interface{}{"type": "string"},
			"version":     map[string]interface{}{"type": "integer", "minimum": 0},
		},
	}
}

func deleteSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"listingId"},
		"properties": map[string]interface{}{
			"listingId": map[string]interface{}{"type": "string", "minLength": 1},
			"version":   map[string]interface{}{"type": "integer", "minimum": 0},
		},
	}
}
