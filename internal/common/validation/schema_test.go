package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointSchema = `{
	"type": "object",
	"required": ["id", "lat"],
	"properties": {
		"id":  {"type": "string", "minLength": 1},
		"lat": {"type": "number", "minimum": -90, "maximum": 90}
	}
}`

func TestSchema_ValidateBytes(t *testing.T) {
	schema, err := CompileSchema(pointSchema)
	require.NoError(t, err)

	tests := []struct {
		name      string
		doc       string
		valid     bool
		badFields []string
	}{
		{name: "valid", doc: `{"id": "a", "lat": 45.4}`, valid: true},
		{name: "out of range", doc: `{"id": "a", "lat": 91}`, badFields: []string{"lat"}},
		{name: "wrong type", doc: `{"id": 7, "lat": 1}`, badFields: []string{"id"}},
		{name: "missing field", doc: `{"lat": 1}`, badFields: []string{"id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := schema.ValidateBytes([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, result.Valid)
			for _, f := range tt.badFields {
				assert.True(t, result.HasErrors(f), "expected violation on %s, got %v", f, result.GetErrorMessages())
			}
		})
	}
}

func TestSchema_MalformedDocument(t *testing.T) {
	schema, err := CompileSchema(pointSchema)
	require.NoError(t, err)

	_, err = schema.ValidateBytes([]byte(`{"id":`))
	assert.Error(t, err)
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := CompileSchema(`{"type": 12}`)
	assert.Error(t, err)
}

func TestValidationResult_Add(t *testing.T) {
	result := NewResult()
	result.Add("page", "must be >= 1", "OUT_OF_RANGE")

	assert.False(t, result.Valid)
	assert.Len(t, result.GetErrorsForField("page"), 1)
	assert.Equal(t, []string{"page: must be >= 1"}, result.GetErrorMessages())
}
