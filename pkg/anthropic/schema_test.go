package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointSchema = `{
  "type": "object",
  "required": ["x"],
  "properties": {
    "x": {"type": "integer", "minimum": 0},
    "label": {"type": ["string", "null"]}
  }
}`

func TestSchemaDecode(t *testing.T) {
	s, err := CompileSchema("point.json", []byte(pointSchema))
	require.NoError(t, err)

	var out struct {
		X     int     `json:"x"`
		Label *string `json:"label"`
	}
	require.NoError(t, s.Decode("Here you go:\n```json\n{\"x\": 3, \"label\": null}\n```", &out))
	assert.Equal(t, 3, out.X)
	assert.Nil(t, out.Label)
}

func TestSchemaDecode_Invalid(t *testing.T) {
	s := MustCompileSchema("point.json", []byte(pointSchema))

	var out map[string]any
	assert.Error(t, s.Decode(`{"x": -1}`, &out))
	assert.Error(t, s.Decode(`{"label": "missing x"}`, &out))
	assert.Error(t, s.Decode(`no json here`, &out))
	assert.Error(t, s.Decode(`{"x": 1,}`, &out))
}

func TestCompileSchema_Bad(t *testing.T) {
	_, err := CompileSchema("bad.json", []byte(`{"type": 12}`))
	assert.Error(t, err)
}
