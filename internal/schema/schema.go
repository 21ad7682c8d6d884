// Package schema embeds the job-spec and run-document JSON Schemas and
// validates arbitrary values against them with gojsonschema (grounded on
// Sumatoshi-tech-codefang/cmd/uast/validate.go's NewGoLoader/Validate use).
// Validation always runs; it is never silently skipped when the validator
// library happens to be unavailable.
package schema

import (
	"embed"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/xerrors"

	"github.com/litani-build/litani"
)

//go:embed job.schema.json run.schema.json
var schemaFS embed.FS

var (
	jobSchemaLoader gojsonschema.JSONLoader
	runSchemaLoader gojsonschema.JSONLoader
)

func init() {
	jobSchema, err := schemaFS.ReadFile("job.schema.json")
	if err != nil {
		panic(err) // embedded at build time, can never fail at runtime
	}
	runSchema, err := schemaFS.ReadFile("run.schema.json")
	if err != nil {
		panic(err)
	}
	jobSchemaLoader = gojsonschema.NewBytesLoader(jobSchema)
	runSchemaLoader = gojsonschema.NewBytesLoader(runSchema)
}

// ValidateJob validates v (typically a litani.JobSpec, or the
// map[string]any decoded from one) against the job schema.
func ValidateJob(v any) error {
	return validate(jobSchemaLoader, v)
}

// ValidateRun validates v (typically a litani.Run) against the run schema.
func ValidateRun(v any) error {
	return validate(runSchemaLoader, v)
}

func validate(schemaLoader gojsonschema.JSONLoader, v any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(v))
	if err != nil {
		return xerrors.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return xerrors.Errorf("%s: %w", strings.Join(msgs, "; "), litani.ErrSchemaInvalid)
	}
	return nil
}
