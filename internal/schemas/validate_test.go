package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bundled "github.com/jonathan/applications-dashboard/schemas"
)

func TestValidateDocument_Config(t *testing.T) {
	tests := []struct {
		name       string
		doc        map[string]any
		wantFields []string
	}{
		{
			name: "minimal",
			doc:  map[string]any{"source": "applications.txt"},
		},
		{
			name: "full",
			doc: map[string]any{
				"source":   "https://example.com/applications.txt",
				"server":   map[string]any{"port": 8080, "watch": true, "refreshRate": 2.5, "refreshBurst": 5, "loadTimeout": "10s"},
				"pipeline": map[string]any{"validateHeader": true, "dateParseMode": "lenient", "dedupe": true, "sortDescending": false},
				"display":  map[string]any{"showDaysAgo": false, "rowLimit": 0},
				"history":  map[string]any{"dsn": "history.db"},
				"auth":     map[string]any{"user": "me", "passwordHash": "$2a$10$abc"},
				"log":      map[string]any{"level": "debug"},
			},
		},
		{
			name:       "bad date mode",
			doc:        map[string]any{"pipeline": map[string]any{"dateParseMode": "fuzzy"}},
			wantFields: []string{"pipeline.dateParseMode"},
		},
		{
			name:       "port out of range",
			doc:        map[string]any{"server": map[string]any{"port": 70000}},
			wantFields: []string{"server.port"},
		},
		{
			name:       "negative row limit",
			doc:        map[string]any{"display": map[string]any{"rowLimit": -1}},
			wantFields: []string{"display.rowLimit"},
		},
		{
			name:       "unknown key",
			doc:        map[string]any{"colour": "blue"},
			wantFields: []string{"(root)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(bundled.Config, tt.doc)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, bundled.Config, validationErr.Schema)

			var fields []string
			for _, fe := range validationErr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestValidateDocument_UnknownSchema(t *testing.T) {
	err := ValidateDocument("missing.schema.json", map[string]any{})

	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "missing.schema.json")
}

func TestValidateDocument_Struct(t *testing.T) {
	type row struct {
		Date     string `json:"date"`
		Company  string `json:"company"`
		Position string `json:"position"`
	}
	view := struct {
		State        string `json:"state"`
		Total        int    `json:"total"`
		Weekly       int    `json:"weekly"`
		Monthly      int    `json:"monthly"`
		DailyAverage string `json:"daily_average"`
		DateRange    string `json:"date_range"`
		LastUpdated  string `json:"last_updated"`
		RowCount     int    `json:"row_count"`
		Rows         []row  `json:"rows"`
	}{
		State: "loaded", Total: 1, Weekly: 1, Monthly: 1, DailyAverage: "1.0",
		DateRange: "Jan 5, 2024 - Jan 5, 2024", LastUpdated: "Jan 6, 2024 10:00:00",
		RowCount: 1, Rows: []row{{"Jan 5, 2024", "Acme", "Engineer"}},
	}

	assert.NoError(t, ValidateDocument(bundled.View, view))

	view.DailyAverage = "1"
	assert.Error(t, ValidateDocument(bundled.View, view))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"name":"acme"}`))

	err := ValidateJSONString(schema, `{"name":5}`)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "name", validationErr.Errors[0].Field)
	assert.Contains(t, err.Error(), "validation failed")

	err = ValidateJSONString(`{"type":`, `{}`)
	var loadErr *SchemaLoadError
	assert.ErrorAs(t, err, &loadErr)
}
