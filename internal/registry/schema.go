package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// manifestSchema validates the shape of a metadata document obtained
// via --jn-meta or an embedded manifest block, before the registry
// accepts it as a PluginDescriptor.
const manifestSchemaJSON = `{
  "type": "object",
  "required": ["name", "role", "modes", "matches"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string"},
    "role": {"type": "string", "enum": ["format", "protocol", "filter", "compression"]},
    "modes": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "enum": ["read", "write", "raw", "filter", "profiles", "inspect"]}
    },
    "matches": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string"}
    },
    "config_params": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

var manifestSchema = gojsonschema.NewStringLoader(manifestSchemaJSON)

// validateManifestJSON checks raw (a JSON object document) against the
// manifest schema, returning a descriptive error listing every
// violation if it doesn't conform.
func validateManifestJSON(raw []byte) error {
	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	result, err := gojsonschema.Validate(manifestSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	var msgs []string
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("manifest schema violations: %s", strings.Join(msgs, "; "))
}
