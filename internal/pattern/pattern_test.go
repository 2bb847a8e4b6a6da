package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames(r *Runner, n int) [][]byte {
	var out [][]byte
	for {
		rgb := make([]byte, n*3)
		if !r.Step(rgb) {
			return out
		}
		out = append(out, rgb)
	}
}

func TestIndexSweep(t *testing.T) {
	f := frames(NewRunner(Plan{Kind: IndexSweep}), 3)
	require.Len(t, f, 3)
	assert.Equal(t, []byte{255, 255, 255, 0, 0, 0, 0, 0, 0}, f[0])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 255, 255, 255}, f[2])
}

func TestRGBChannels(t *testing.T) {
	f := frames(NewRunner(Plan{Kind: RGBChannels}), 2)
	require.Len(t, f, 3)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0}, f[0])
	assert.Equal(t, []byte{0, 255, 0, 0, 255, 0}, f[1])
	assert.Equal(t, []byte{0, 0, 255, 0, 0, 255}, f[2])
}

func TestSolid(t *testing.T) {
	f := frames(NewRunner(Plan{Kind: Solid, Color: [3]byte{1, 2, 3}}), 2)
	require.Len(t, f, 1)
	assert.Equal(t, []byte{1, 2, 3, 1, 2, 3}, f[0])

	f = frames(NewRunner(Plan{Kind: Solid}), 1)
	assert.Equal(t, [][]byte{{255, 255, 255}}, f)
}

func TestChase(t *testing.T) {
	f := frames(NewRunner(Plan{Kind: Chase, Color: [3]byte{200, 100, 40}}), 4)
	require.Len(t, f, 4)
	assert.Equal(t, []byte{200, 100, 40, 0, 0, 0, 0, 0, 0, 0, 0, 0}, f[0])
	assert.Equal(t, []byte{50, 25, 10, 100, 50, 20, 200, 100, 40, 0, 0, 0}, f[2])
}

func TestLoops(t *testing.T) {
	r := NewRunner(Plan{Kind: RGBChannels, Loops: 2})
	assert.Len(t, frames(r, 1), 9)
}

func TestNoneAndEmpty(t *testing.T) {
	assert.Empty(t, frames(NewRunner(Plan{}), 3))
	assert.Empty(t, frames(NewRunner(Plan{Kind: IndexSweep}), 0))
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("plane_z")
	assert.Error(t, err)
}
