package entity

import "encoding/json"

// Schema is a JSON schema for the arguments of a tool. It is declared statically by each tool.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single tool argument.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// ObjectSchema builds an object schema from its properties and required names.
func ObjectSchema(props map[string]Property, required ...string) Schema {
	if props == nil {
		props = map[string]Property{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

// Raw returns the schema encoded as JSON.
func (s Schema) Raw() json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		// Schemas are built from plain strings and maps.
		panic(err)
	}
	return b
}
