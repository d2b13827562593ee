package tools

import "github.com/invopop/jsonschema"

// GenerateSchema reflects the JSON schema of a tool's input struct.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T

	return reflector.Reflect(v)
}
