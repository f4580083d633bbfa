package slidesync

import (
	"errors"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const deckSchemaURL = "slidesync://deck.schema.json"

// deckSchema checks the JSON shape and numeric ranges. Times are capped at
// 2^53-1 ms so every accepted value converts to int64 exactly. Emptiness rules
// and timing consistency are enforced by validateDeck so the error can name
// the item.
const deckSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["title", "items"],
  "properties": {
    "title": {"type": "string"},
    "description": {"type": "string"},
    "author": {"type": "string"},
    "language": {"type": "string"},
    "format": {"type": "string"},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "content"],
        "properties": {
          "title": {"type": "string"},
          "content": {"type": "string"},
          "sequence": {"type": "integer", "minimum": -2147483648, "maximum": 2147483647},
          "startTime": {"type": "number", "minimum": 0, "maximum": 9007199254740991},
          "endTime": {"type": "number", "minimum": 0, "maximum": 9007199254740991},
          "duration": {"type": "number", "minimum": 0, "maximum": 9007199254740991},
          "keywords": {"type": "array", "items": {"type": "string"}},
          "semanticTags": {"type": "array", "items": {"type": "string"}},
          "transition": {
            "type": "object",
            "properties": {
              "type": {"type": "string"},
              "duration": {"type": "integer", "minimum": 0, "maximum": 9007199254740991}
            }
          },
          "imageUrl": {"type": "string"},
          "videoUrl": {"type": "string"},
          "link": {"type": "string"},
          "notes": {"type": "string"}
        }
      }
    }
  }
}`

var compiledDeckSchema = jsonschema.MustCompileString(deckSchemaURL, deckSchema)

// checkSchema validates a decoded JSON document against the deck schema and
// converts the first failure into a ValidationError.
func checkSchema(doc any) error {
	err := compiledDeckSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Index: -1, Reason: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	index, field := splitInstanceLocation(leaf.InstanceLocation)
	return &ValidationError{Index: index, Field: field, Reason: leaf.Message}
}

// splitInstanceLocation turns a JSON pointer such as "/items/2/title" into
// an item index and field name.
func splitInstanceLocation(loc string) (int, string) {
	parts := strings.Split(strings.TrimPrefix(loc, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return -1, ""
	}
	if parts[0] != "items" || len(parts) < 2 {
		return -1, parts[0]
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return -1, "items"
	}
	if len(parts) > 2 {
		return idx, parts[2]
	}
	return idx, ""
}

// validateDeck enforces the rules the schema cannot name precisely.
func validateDeck(raw *rawDeck) error {
	if strings.TrimSpace(raw.Title) == "" {
		return &ValidationError{Index: -1, Field: "title", Reason: "must be a non-empty string"}
	}
	if raw.Items == nil {
		return &ValidationError{Index: -1, Field: "items", Reason: "must be an array"}
	}
	for i, it := range raw.Items {
		if strings.TrimSpace(it.Title) == "" {
			return &ValidationError{Index: i, Field: "title", Reason: "must be a non-empty string"}
		}
		if strings.TrimSpace(it.Content) == "" {
			return &ValidationError{Index: i, Field: "content", Reason: "must be a non-empty string"}
		}
	}
	return nil
}
