package geometry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBuildFromYAML(t *testing.T) {
	const doc = `
surfaces:
  - name: block
    type: box
    side: inside
    min: [0, 0, 0]
    max: [2, 1, 1]
  - name: hole
    type: sphere
    side: outside
    center: [1, .5, .5]
    radius: .25
bounds:
  min: [-.5, -.5, -.5]
  max: [2.5, 1.5, 1.5]
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	g, err := Build(cfg)
	require.NoError(t, err)
	require.Len(t, g.Surfaces(), 2)
	require.Equal(t, Outside, g.Surfaces()[1].Side)
	require.Len(t, g.Features().Edges, 12)
	require.True(t, g.Inside(vecOf([3]float64{.2, .5, .5})))
	require.False(t, g.Inside(vecOf([3]float64{1, .5, .5})))
}

func TestBuildErrors(t *testing.T) {
	for name, cfg := range map[string]Config{
		"empty":      {},
		"badSide":    {Surfaces: []SurfaceConfig{{Type: "sphere", Side: "left", Radius: 1}}},
		"badType":    {Surfaces: []SurfaceConfig{{Type: "torus", Side: "inside"}}},
		"noRadius":   {Surfaces: []SurfaceConfig{{Type: "sphere", Side: "inside"}}},
		"flatBox":    {Surfaces: []SurfaceConfig{{Type: "box", Side: "inside", Max: [3]float64{1, 1, 0}}}},
		"noBounds":   {Surfaces: []SurfaceConfig{{Type: "sphere", Side: "outside", Radius: 1}}},
		"noSuchFile": {Surfaces: []SurfaceConfig{{Type: "file", Side: "inside", File: "missing.stl"}}},
	} {
		_, err := Build(cfg)
		require.Error(t, err, name)
	}
}
