package indexsync

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/validation"
	"marketplace-search/internal/models"
	"marketplace-search/pkg/registry"
)

// Decoder turns raw event payloads into listings, validating them against the
// JSON schemas of the event registry first.
type Decoder struct {
	schemas map[string]*validation.Schema
}

func NewDecoder(reg *registry.EventRegistry) (*Decoder, error) {
	d := &Decoder{schemas: make(map[string]*validation.Schema, len(reg.Events))}
	for _, ev := range reg.Events {
		doc, err := ev.SchemaJSON()
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Name, err)
		}
		schema, err := validation.CompileSchema(doc)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.Name, err)
		}
		d.schemas[ev.Name] = schema
	}
	return d, nil
}

// DeleteRequest identifies the listing a delete event removes.
type DeleteRequest struct {
	ListingID string `json:"listingId"`
	Version   int64  `json:"version,omitempty"`
}

// DecodeListing validates and decodes a created or edited payload.
func (d *Decoder) DecodeListing(event string, payload []byte) (*models.Listing, error) {
	if err := d.validate(event, payload); err != nil {
		return nil, err
	}
	var listing models.Listing
	if err := json.Unmarshal(payload, &listing); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("decode listing: %v", err), nil)
	}
	return &listing, nil
}

// DecodeDelete validates and decodes a delete payload.
func (d *Decoder) DecodeDelete(payload []byte) (*DeleteRequest, error) {
	if err := d.validate(registry.EventListingDeleted, payload); err != nil {
		return nil, err
	}
	var req DeleteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("decode delete: %v", err), nil)
	}
	return &req, nil
}

func (d *Decoder) validate(event string, payload []byte) error {
	schema, ok := d.schemas[event]
	if !ok {
		return apperrors.NewValidationError("unknown event "+event, nil)
	}

	result, err := schema.ValidateBytes(payload)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("malformed %s payload: %v", event, err), nil)
	}
	if !result.Valid {
		return apperrors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "), result.Errors)
	}
	return nil
}
