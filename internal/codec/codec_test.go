package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON_RoundTripsAStruct(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	c := JSON{}

	in := payload{Name: "puck", Count: 3}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestJSON_RoundTripsAnOpaqueMap(t *testing.T) {
	c := JSON{}
	in := map[string]any{"type": "asteroid", "x": 1.5}

	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, "asteroid", out["type"])
	assert.Equal(t, 1.5, out["x"])
}
