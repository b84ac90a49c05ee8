package dashboard

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// specSchema is the JSON Schema every emitted dashboard must satisfy.
const specSchema = `{
	"type": "object",
	"required": ["metadata"],
	"properties": {
		"metadata": {
			"type": "object",
			"required": ["as_of", "scenario_type"],
			"properties": {
				"as_of": {"type": "string"},
				"scenario_type": {"type": "string", "minLength": 1},
				"base_currency": {"type": "string"},
				"portfolio_id": {"type": "string"}
			}
		},
		"metrics": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "label", "value"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"label": {"type": "string", "minLength": 1},
					"value": {"type": "number"},
					"unit": {"type": "string"},
					"severity": {"type": "string", "enum": ["info", "warning", "critical"]},
					"change": {"type": "number"}
				}
			}
		},
		"charts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type", "series"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"type": {"type": "string", "enum": ["line", "bar", "pie"]},
					"series": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["id", "data_ref"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"data_ref": {"type": "string", "minLength": 1}
							}
						}
					}
				}
			}
		},
		"tables": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "columns", "data_ref"],
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"data_ref": {"type": "string", "minLength": 1},
					"columns": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["id", "label"],
							"properties": {
								"id": {"type": "string", "minLength": 1},
								"label": {"type": "string"},
								"align": {"type": "string", "enum": ["left", "right", "center"]}
							}
						}
					}
				}
			}
		},
		"alerts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["severity", "message"],
				"properties": {
					"severity": {"type": "string", "enum": ["info", "warning", "critical"]},
					"message": {"type": "string", "minLength": 1}
				}
			}
		},
		"data": {"type": "object"},
		"time_series": {
			"type": "object",
			"additionalProperties": {"type": "array"}
		}
	}
}`

var (
	compiledSchema     *jsonschema.Schema
	compileSchemaOnce  sync.Once
	compileSchemaError error
)

func schema() (*jsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(specSchema), &doc); err != nil {
			compileSchemaError = fmt.Errorf("unmarshal dashboard schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("dashboard.json", doc); err != nil {
			compileSchemaError = fmt.Errorf("add dashboard schema: %w", err)
			return
		}
		compiledSchema, compileSchemaError = compiler.Compile("dashboard.json")
	})
	return compiledSchema, compileSchemaError
}

// Validate checks the spec against the schema and verifies every
// data_ref. It returns the human-readable problems found; an empty slice
// means the document is valid.
func Validate(spec *Spec) []string {
	var problems []string

	s, err := schema()
	if err != nil {
		return []string{err.Error()}
	}

	raw, err := json.Marshal(spec)
	if err != nil {
		return []string{fmt.Sprintf("marshal dashboard: %v", err)}
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []string{fmt.Sprintf("unmarshal dashboard: %v", err)}
	}
	if err := s.Validate(doc); err != nil {
		problems = append(problems, err.Error())
	}

	for _, err := range spec.VerifyRefs() {
		problems = append(problems, err.Error())
	}
	return problems
}
