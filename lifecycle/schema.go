package lifecycle

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/hostguard-dev/hostguard/domain/entities"
)

// ManifestSchema generates the JSON Schema (Draft 2020-12) describing
// plugin.yaml, for editor integration and publisher-side validation.
func ManifestSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(&entities.PluginManifest{})

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
