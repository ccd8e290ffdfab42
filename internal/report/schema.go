package report

import (
	_ "embed"

	"github.com/wesleyorama2/perfgate/pkg/jsonschema"
)

//go:embed report.schema.json
var reportSchemaJSON string

var reportSchema = jsonschema.MustCompile("report.schema.json", reportSchemaJSON)

// Schema returns the JSON Schema every report document satisfies.
func Schema() string {
	return reportSchemaJSON
}

// ValidateJSON checks data against the report schema.
func ValidateJSON(data []byte) error {
	return reportSchema.ValidateJSON(data)
}
