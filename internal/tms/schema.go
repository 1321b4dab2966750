package tms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const stampPattern = `^\d{14}[+-]\d{4}$`

// BuildOrderSchema returns the JSON-Schema every create payload must satisfy.
func BuildOrderSchema() map[string]any {
	str := map[string]any{"type": "string", "minLength": 1}
	stop := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"__type":             map[string]any{"const": "stop"},
			"__name":             map[string]any{"const": "stops"},
			"company_id":         str,
			"location_id":        str,
			"sched_arrive_early": map[string]any{"type": "string", "pattern": stampPattern},
			"sched_arrive_late":  map[string]any{"type": "string", "pattern": stampPattern},
			"stop_type":          map[string]any{"enum": []string{"PU", "SO"}},
		},
		"required": []string{"__type", "__name", "company_id", "location_id", "sched_arrive_early", "stop_type"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"__type":       map[string]any{"const": "orders"},
			"company_id":   str,
			"blnum":        str,
			"customer_id":  str,
			"ordered_date": map[string]any{"type": "string", "pattern": stampPattern},
			"stops": map[string]any{
				"type":     "array",
				"items":    stop,
				"minItems": 2,
				"maxItems": 2,
			},
		},
		"required": []string{"__type", "company_id", "blnum", "customer_id", "ordered_date", "stops"},
	}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func orderSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(BuildOrderSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("order.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("order.json")
	})
	return schema, schemaErr
}

// ValidatePayload checks p against BuildOrderSchema.
func ValidatePayload(p *OrderPayload) error {
	s, err := orderSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}
