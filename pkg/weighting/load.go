package weighting

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sumatoshi-tech/stochgrid/pkg/scenario"
)

//go:embed table.schema.json
var tableSchema []byte

// Schema returns the JSON schema probability tables are validated against.
func Schema() []byte {
	return tableSchema
}

// LoadTable reads a JSON probability table and validates it against Schema.
func LoadTable(r io.Reader) (Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Table{}, fmt.Errorf("read probability table: %w", err)
	}

	return ParseTable(data)
}

// ParseTable validates and decodes a JSON probability table.
func ParseTable(data []byte) (Table, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(tableSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Table{}, &scenario.ConfigurationError{Field: "probabilities", Value: "<json>", Reason: err.Error()}
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			reasons = append(reasons, resultErr.String())
		}

		return Table{}, &scenario.ConfigurationError{
			Field:  "probabilities",
			Value:  "<json>",
			Reason: strings.Join(reasons, "; "),
		}
	}

	var table Table

	unmarshalErr := json.Unmarshal(data, &table)
	if unmarshalErr != nil {
		return Table{}, fmt.Errorf("decode probability table: %w", unmarshalErr)
	}

	return table, nil
}
