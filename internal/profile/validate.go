package profile

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Sub-document schemas. A record failing these is treated as corrupt on
// load; the load fails rather than exposing a half-usable profile.

const inventorySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0}
    },
    "equipment": {
      "type": "object",
      "properties": {
        "main_hand": {"type": "string"},
        "armor": {
          "type": "array",
          "items": {"type": "string"},
          "maxItems": 4
        }
      }
    }
  }
}`

const statsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["hp", "max_hp"],
  "properties": {
    "hp": {"type": "integer", "minimum": 0},
    "max_hp": {"type": "integer", "minimum": 1},
    "attack": {"type": "integer", "minimum": 0},
    "defense": {"type": "integer", "minimum": 0},
    "pos": {
      "type": "array",
      "items": {"type": "integer"},
      "minItems": 3,
      "maxItems": 3
    }
  }
}`

const socialSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "rank": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "friends": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	inventorySchema = jsonschema.MustCompileString("inventory.schema.json", inventorySchemaJSON)
	statsSchema     = jsonschema.MustCompileString("stats.schema.json", statsSchemaJSON)
	socialSchema    = jsonschema.MustCompileString("social.schema.json", socialSchemaJSON)
)

// Validate checks the record's sub-documents against their schemas.
// Empty sub-documents are allowed; FromRecord substitutes defaults.
func Validate(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("nil record")
	}
	if err := validateDoc(inventorySchema, "inventory", rec.Inventory); err != nil {
		return err
	}
	if err := validateDoc(statsSchema, "stats", rec.Stats); err != nil {
		return err
	}
	if err := validateDoc(socialSchema, "social", rec.Social); err != nil {
		return err
	}
	return nil
}

func validateDoc(schema *jsonschema.Schema, name string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s doc: %w", name, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%s doc: %w", name, err)
	}
	return nil
}
