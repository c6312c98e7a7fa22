package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/formpilot/fieldmap/constants"
	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
)

// BuildTargetSchemaJSONSchema returns the JSON-Schema (draft 2020-12 subset)
// for a submitted target schema document, as a generic map. Used to validate
// caller input before a job is created.
func BuildTargetSchemaJSONSchema() map[string]any {
	return map[string]any{
		"type":     "array",
		"minItems": 1,
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"name":     map[string]any{"type": "string", "minLength": 1},
				"type":     map[string]any{"type": "string", "enum": constants.FieldTypeStrings()},
				"required": map[string]any{"type": "boolean"},
				"options":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"name"},
		},
	}
}

// BuildSourceFieldsJSONSchema returns the JSON-Schema for an extracted
// source-field document.
func BuildSourceFieldsJSONSchema() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"name":        map[string]any{"type": "string", "minLength": 1},
				"value":       map[string]any{"type": "string"},
				"type":        map[string]any{"type": "string"},
				"context":     map[string]any{"type": "string"},
				"document_id": map[string]any{"type": "string"},
			},
			"required": []string{"name", "value"},
		},
	}
}

// validateJSON validates data against schemaMap.
func validateJSON(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: not valid json: %v", common.ErrSchemaInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrSchemaInvalid, err)
	}
	return nil
}

// ParseTargetSchema validates and decodes a raw target schema document.
func ParseTargetSchema(raw []byte) ([]entity.TargetField, error) {
	if err := validateJSON(BuildTargetSchemaJSONSchema(), raw); err != nil {
		return nil, err
	}
	var targets []entity.TargetField
	if err := json.Unmarshal(raw, &targets); err != nil {
		return nil, fmt.Errorf("decode targets: %w", err)
	}
	for i := range targets {
		targets[i].Type = constants.ParseFieldType(string(targets[i].Type))
	}
	return targets, nil
}

// ParseSourceFields validates and decodes a raw extracted-fields document.
func ParseSourceFields(raw []byte) ([]entity.SourceField, error) {
	if err := validateJSON(BuildSourceFieldsJSONSchema(), raw); err != nil {
		return nil, err
	}
	var sources []entity.SourceField
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	for i := range sources {
		sources[i].Type = constants.ParseFieldType(string(sources[i].Type))
	}
	return sources, nil
}
