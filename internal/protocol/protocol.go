// Package protocol defines the JSON bodies of the plot HTTP API.
package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"plotkeeper.ai/internal/plot"
)

const Version = "1.0"

//go:embed schemas/plot.schema.json
var plotSchemaJSON string

var plotSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("plot.schema.json", plotSchemaJSON)
})

// ValidatePlotJSON checks a plot body against the published schema.
func ValidatePlotJSON(b []byte) error {
	s, err := plotSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.Validate(v)
}

// DecodePlot validates b and decodes it. A missing id means the plot has no
// row yet.
func DecodePlot(b []byte) (plot.Plot, error) {
	if err := ValidatePlotJSON(b); err != nil {
		return plot.Plot{}, fmt.Errorf("schema: %w", err)
	}
	p := plot.Plot{ID: plot.UnsavedID}
	if err := json.Unmarshal(b, &p); err != nil {
		return plot.Plot{}, err
	}
	if err := p.Validate(); err != nil {
		return plot.Plot{}, err
	}
	return p, nil
}
