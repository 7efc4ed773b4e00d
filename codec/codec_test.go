package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	c, ok := ByName("json")
	require.True(t, ok)
	assert.Equal(t, "json", c.Name())

	c, ok = ByName("go-json")
	require.True(t, ok)
	assert.Equal(t, "go-json", c.Name())

	_, ok = ByName("xml")
	assert.False(t, ok)
}

func TestMustMarshal(t *testing.T) {
	type rec struct {
		Data []byte `json:"data"`
	}
	b := MustMarshal(nil, rec{Data: []byte("mat:Graveyard")})

	var out rec
	require.NoError(t, Default.Unmarshal(b, &out))
	assert.Equal(t, "mat:Graveyard", string(out.Data))
}

func TestGoJSON_CompatibleWithJSON(t *testing.T) {
	type snapshot struct {
		Coords [][3]float64      `json:"coords"`
		Tags   map[string][]byte `json:"tags"`
	}
	in := snapshot{
		Coords: [][3]float64{{0, 1, 2}, {-1.5, 0, 3}},
		Tags:   map[string][]byte{"NAME": []byte("mat:steel")},
	}

	b, err := GoJSON{}.Marshal(in)
	require.NoError(t, err)
	var out snapshot
	require.NoError(t, JSON{}.Unmarshal(b, &out))
	assert.Equal(t, in, out)

	b = MustMarshal(JSON{}, in)
	out = snapshot{}
	require.NoError(t, GoJSON{}.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
