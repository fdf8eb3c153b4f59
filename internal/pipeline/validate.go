package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"document-worker-service/internal/entity"
)

// Validator enforces per-type schema constraints on a draft metadata record,
// returning the record unchanged when it conforms.
type Validator interface {
	Validate(dtype entity.DocumentType, draft entity.Metadata) (entity.Metadata, error)
}

type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the per-field violations that made a draft
// non-conforming.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// SchemaValidator checks drafts against a JSON Schema per document type.
// Schemas are compiled once at construction.
type SchemaValidator struct {
	schemas map[entity.DocumentType]*jsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	defs := map[entity.DocumentType]map[string]any{
		entity.TypeInvoice:  invoiceSchema(),
		entity.TypeReceipt:  receiptSchema(),
		entity.TypeContract: contractSchema(),
	}

	schemas := make(map[entity.DocumentType]*jsonschema.Schema, len(defs))
	for dtype, def := range defs {
		schema, err := compileSchema(string(dtype)+".json", def)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", dtype, err)
		}
		schemas[dtype] = schema
	}
	return &SchemaValidator{schemas: schemas}, nil
}

func compileSchema(name string, def map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile(name)
}

func (v *SchemaValidator) Validate(dtype entity.DocumentType, draft entity.Metadata) (entity.Metadata, error) {
	if draft == nil {
		return nil, &ValidationError{Violations: []FieldViolation{{Field: "(root)", Message: "draft is missing"}}}
	}
	if draft.Dtype() != dtype {
		return nil, &ValidationError{Violations: []FieldViolation{{
			Field:   "(root)",
			Message: fmt.Sprintf("draft is %s, document is %s", draft.Dtype(), dtype),
		}}}
	}

	schema, ok := v.schemas[dtype]
	if !ok {
		return nil, fmt.Errorf("no schema for dtype %q", dtype)
	}

	raw, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			out := &ValidationError{}
			collectViolations(ve, out)
			return nil, out
		}
		return nil, fmt.Errorf("validate draft: %w", err)
	}
	return draft, nil
}

// collectViolations flattens the jsonschema cause tree into leaf violations
// keyed by instance path.
func collectViolations(ve *jsonschema.ValidationError, out *ValidationError) {
	if len(ve.Causes) == 0 {
		field := strings.ReplaceAll(strings.TrimPrefix(ve.InstanceLocation, "/"), "/", ".")
		if field == "" {
			field = "(root)"
		}
		out.Violations = append(out.Violations, FieldViolation{Field: field, Message: ve.Message})
		return
	}
	for _, cause := range ve.Causes {
		collectViolations(cause, out)
	}
}

func baseProps() map[string]any {
	return map[string]any{
		"sourceLanguage": map[string]any{"type": "string", "minLength": 2},
		"ocrConfidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"processedAt":    map[string]any{"type": "string", "minLength": 1},
	}
}

func currencyProp() map[string]any {
	return map[string]any{"type": "string", "minLength": 3, "maxLength": 3}
}

func invoiceSchema() map[string]any {
	props := baseProps()
	props["invoiceNumber"] = map[string]any{"type": "string", "minLength": 3}
	props["customerName"] = map[string]any{"type": "string", "minLength": 1}
	props["total"] = map[string]any{"type": "number", "minimum": 0.0}
	props["currency"] = currencyProp()
	props["invoiceDate"] = map[string]any{"type": "string", "minLength": 1}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required": []string{
			"sourceLanguage", "ocrConfidence", "processedAt",
			"invoiceNumber", "customerName", "total", "currency", "invoiceDate",
		},
	}
}

func receiptSchema() map[string]any {
	props := baseProps()
	props["merchant"] = map[string]any{"type": "string", "minLength": 1}
	props["total"] = map[string]any{"type": "number", "minimum": 0.0}
	props["items"] = map[string]any{
		"type": "array",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":  map[string]any{"type": "string", "minLength": 1},
				"price": map[string]any{"type": "number", "minimum": 0.0},
			},
			"required": []string{"name", "price"},
		},
	}
	props["currency"] = currencyProp()
	props["receiptDate"] = map[string]any{"type": "string", "minLength": 1}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required": []string{
			"sourceLanguage", "ocrConfidence", "processedAt",
			"merchant", "total", "items", "currency", "receiptDate",
		},
	}
}

func contractSchema() map[string]any {
	props := baseProps()
	props["parties"] = map[string]any{
		"type":     "array",
		"items":    map[string]any{"type": "string", "minLength": 1},
		"minItems": 2,
	}
	props["effectiveDate"] = map[string]any{"type": "string", "minLength": 1}
	props["termMonths"] = map[string]any{"type": "integer", "minimum": 1}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required": []string{
			"sourceLanguage", "ocrConfidence", "processedAt",
			"parties", "effectiveDate", "termMonths",
		},
	}
}
