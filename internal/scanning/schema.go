package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// fieldSchema accepts an OCR field or null. Value and confidence are left loose and
// repaired by Validate.
var fieldSchema = map[string]any{
	"type": []any{"object", "null"},
	"properties": map[string]any{
		"value":      map[string]any{"type": []any{"string", "number", "null"}},
		"confidence": map[string]any{"type": []any{"number", "string", "null"}},
	},
}

// responseSchema is what a response must satisfy to count as a meter extraction at
// all: an object naming the reading or the meter, with the reading as an OCR field.
var responseSchema = map[string]any{
	"type": "object",
	"anyOf": []any{
		map[string]any{"required": []any{"current_reading"}},
		map[string]any{"required": []any{"meter_number"}},
	},
	"properties": map[string]any{
		"current_reading": map[string]any{"type": []any{"object", "null"}},
	},
}

// meterSchema describes the object the prompt asks for
var meterSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meter_number":    fieldSchema,
		"current_reading": fieldSchema,
		"unit":            fieldSchema,
		"additional_info": fieldSchema,
		"tariff_info": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"HT": fieldSchema,
				"NT": fieldSchema,
			},
		},
	},
}

type lazySchema struct {
	name   string
	source map[string]any
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

var (
	compiledResponse = &lazySchema{name: "response.json", source: responseSchema}
	compiledMeter    = &lazySchema{name: "meter.json", source: meterSchema}
)

func (l *lazySchema) compile() (*jsonschema.Schema, error) {
	l.once.Do(func() {
		b, err := json.Marshal(l.source)
		if err != nil {
			l.err = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(l.name, bytes.NewReader(b)); err != nil {
			l.err = fmt.Errorf("add schema: %w", err)
			return
		}
		l.schema, l.err = compiler.Compile(l.name)
	})
	return l.schema, l.err
}

func (l *lazySchema) validate(v any) error {
	schema, err := l.compile()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// checkResponse rejects objects that are not a meter extraction, such as
// {"error": "..."} refusals or a bare scalar reading. v is a decoded JSON value.
func checkResponse(v any) error {
	return compiledResponse.validate(v)
}

// checkShape validates the field level structure of a decoded response
func checkShape(v any) error {
	return compiledMeter.validate(v)
}
