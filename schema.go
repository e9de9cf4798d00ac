package infty

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Response schemas attached to typed role turns. The model is constrained to
// emit strict JSON conforming to these, and replies are validated against
// them after parsing.
const directorResponseSchemaJSON = `{
  "type": "object",
  "required": ["directive", "rationale"],
  "properties": {
    "directive": { "type": "string" },
    "rationale": { "type": ["string", "null"] }
  },
  "additionalProperties": false
}`

const verifierResponseSchemaJSON = `{
  "type": "object",
  "required": ["verdict", "reasons", "suggestions"],
  "properties": {
    "verdict": { "type": "string", "enum": ["pass", "fail"] },
    "reasons": { "type": "array", "items": { "type": "string" } },
    "suggestions": { "type": "array", "items": { "type": "string" } }
  },
  "additionalProperties": false
}`

var (
	directorResponseSchema = jsonschema.MustCompileString("director_response.json", directorResponseSchemaJSON)
	verifierResponseSchema = jsonschema.MustCompileString("verifier_response.json", verifierResponseSchemaJSON)
)

// DirectorResponseSchema returns the director reply schema as a JSON value
// suitable for attaching to a submission.
func DirectorResponseSchema() map[string]any {
	return mustSchemaValue(directorResponseSchemaJSON)
}

// VerifierResponseSchema returns the verifier reply schema as a JSON value
// suitable for attaching to a submission.
func VerifierResponseSchema() map[string]any {
	return mustSchemaValue(verifierResponseSchemaJSON)
}

func mustSchemaValue(raw string) map[string]any {
	var value map[string]any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}
	return value
}

// validateAgainst checks a reply against its compiled response schema. The
// message must already have survived parseJSONStruct; fences are stripped
// the same way before validation.
func validateAgainst(schema *jsonschema.Schema, message string) error {
	var payload any
	if err := parseJSONStruct(message, &payload); err != nil {
		return err
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
