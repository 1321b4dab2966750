package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildAddressJSONSchema is the reply shape the model is asked for and
// validated against.
func BuildAddressJSONSchema() map[string]any {
	addr := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"company": map[string]any{"type": "string"},
			"address": map[string]any{"type": "string"},
			"city":    map[string]any{"type": "string"},
			"state":   map[string]any{"type": "string", "pattern": `^([A-Za-z]{2})?$`},
			"zip":     map[string]any{"type": "string", "pattern": `^(\d{5}(-\d{4})?)?$`},
		},
		"required": []string{"address", "city", "state"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pickup":  addr,
			"ship_to": addr,
		},
		"required": []string{"pickup", "ship_to"},
	}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func addressSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(BuildAddressJSONSchema())
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("mem://address.json", bytes.NewReader(b)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("mem://address.json")
	})
	return schema, schemaErr
}

// ValidateAddressJSON checks raw against BuildAddressJSONSchema.
func ValidateAddressJSON(raw []byte) error {
	s, err := addressSchema()
	if err != nil {
		return fmt.Errorf("compile address schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return s.Validate(v)
}
