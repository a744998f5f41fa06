// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// Default returns the built-in event registry.
func Default() *EventRegistry {
	writeErrors := []string{"VALIDATION_ERROR", "INDEX_WRITE_FAILED", "ELASTICSEARCH_UNAVAILABLE", "SEARCH_TIMEOUT"}
	return &EventRegistry{
		Version:     "1.0.0",
		LastUpdated: "2024-05-22",
		Events: []EventDefinition{
			{
				Name:        EventListingCreated,
				Description: "Index a newly created listing",
				TaskType:    EventListingCreated,
				Method:      "POST",
				Route:       "/api/search/reindex/listing-created",
				Schema:      listingSchema(),
				ErrorCodes:  writeErrors,
				Retries:     3,
			},
			{
				Name:        EventListingEdited,
				Description: "Overwrite an indexed listing in place",
				TaskType:    EventListingEdited,
				Method:      "PATCH",
				Route:       "/api/search/reindex/listing-edited",
				Schema:      listingSchema(),
				ErrorCodes:  writeErrors,
				Retries:     3,
			},
			{
				Name:        EventListingDeleted,
				Description: "Remove a listing from the index",
				TaskType:    EventListingDeleted,
				Method:      "DELETE",
				Route:       "/api/search/reindex/listing-deleted",
				Schema:      deleteSchema(),
				ErrorCodes:  writeErrors,
				Retries:     3,
			},
		},
	}
}

// LoadRegistry reads a registry from a JSON file.
func LoadRegistry(path string) (*EventRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg EventRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// Lookup finds an event definition by name.
func (r *EventRegistry) Lookup(name string) (*EventDefinition, bool) {
	for i := range r.Events {
		if r.Events[i].Name == name {
			return &r.Events[i], true
		}
	}
	return nil, false
}

// SchemaJSON returns the event's JSON schema as a document.
func (d *EventDefinition) SchemaJSON() (string, error) {
	data, err := json.Marshal(d.Schema)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
