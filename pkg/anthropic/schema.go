package anthropic

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates model output against a JSON Schema document.
type Schema struct {
	compiled *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document. name is only used to label
// the resource inside the compiler.
func CompileSchema(name string, doc []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(doc)); err != nil {
		return nil, eris.Wrapf(err, "anthropic: add schema %s", name)
	}
	s, err := compiler.Compile(name)
	if err != nil {
		return nil, eris.Wrapf(err, "anthropic: compile schema %s", name)
	}
	return &Schema{compiled: s}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(name string, doc []byte) *Schema {
	s, err := CompileSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode extracts the JSON object from model text, validates it and
// unmarshals it into v.
func (s *Schema) Decode(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return eris.Wrap(err, "anthropic: unmarshal response json")
	}
	if err := s.compiled.Validate(doc); err != nil {
		return eris.Wrap(err, "anthropic: response does not match schema")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return eris.Wrap(err, "anthropic: decode response json")
	}
	return nil
}
