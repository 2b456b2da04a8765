package extract

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema for the decoded item rows. Numerics may be numbers, formatted
// strings, or null. Rows without a usable description are dropped later by
// normalization; the schema only rejects payloads whose shape is wrong,
// which is then treated the same as unparseable JSON and triggers the
// recovery prompt.
const itemsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "description": {"type": ["string", "null"]},
      "unit": {"type": ["string", "null"]},
      "quantity": {"type": ["number", "string", "null"]},
      "unit_price": {"type": ["number", "string", "null"]},
      "total": {"type": ["number", "string", "null"]},
      "confidence": {"type": ["number", "null"]},
      "raw_line": {"type": ["string", "null"]}
    }
  }
}`

var compiledItemsSchema = jsonschema.MustCompileString("items.schema.json", itemsSchema)

func ValidateItems(rows []map[string]any) error {
	generic := make([]any, 0, len(rows))
	for _, r := range rows {
		generic = append(generic, map[string]any(r))
	}
	if err := compiledItemsSchema.Validate(generic); err != nil {
		return fmt.Errorf("items failed schema validation: %w", err)
	}
	return nil
}
