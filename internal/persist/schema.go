package persist

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// stateSchema constrains the checkpoint document shape. Validation runs
// before unmarshalling so a file that decodes but carries nonsense (a
// negative counter, a 23-slot hourly ring) is treated as corrupt rather
// than silently adopted.
const stateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "saved_at", "stats"],
  "properties": {
    "schema_version": {"type": "integer", "minimum": 1},
    "saved_at": {"type": "string"},
    "stats": {
      "type": "object",
      "required": [
        "total_keystrokes", "key_frequency", "mouse_clicks",
        "mouse_distance", "scroll_ticks", "hourly_activity", "daily"
      ],
      "properties": {
        "total_keystrokes": {"type": "integer", "minimum": 0},
        "key_frequency": {
          "type": "object",
          "additionalProperties": {"type": "integer", "minimum": 0}
        },
        "mouse_clicks": {
          "type": "object",
          "additionalProperties": {"type": "integer", "minimum": 0}
        },
        "mouse_distance": {"type": "number", "minimum": 0},
        "scroll_ticks": {"type": "integer", "minimum": 0},
        "hourly_activity": {
          "type": "array",
          "minItems": 24,
          "maxItems": 24,
          "items": {"type": "integer", "minimum": 0}
        },
        "hourly_date": {"type": "string"},
        "daily": {
          "type": "object",
          "additionalProperties": {
            "type": "object",
            "properties": {
              "keys": {"type": "integer", "minimum": 0},
              "clicks": {"type": "integer", "minimum": 0},
              "distance": {"type": "number", "minimum": 0},
              "scroll": {"type": "integer", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledStateSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("state.schema.json", strings.NewReader(stateSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("state.schema.json")
	})
	return compiledSchema, schemaErr
}

// validateState checks raw checkpoint bytes against the schema.
func validateState(data []byte) error {
	schema, err := compiledStateSchema()
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return err
	}
	return schema.Validate(instance)
}
