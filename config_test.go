package cvmesh

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const boxConfig = `
geometry:
  surfaces:
    - name: walls
      type: box
      side: inside
      min: [0, 0, 0]
      max: [1, 1, 1]
initialPoints:
  type: bodyCentredCubic
  coeffs:
    initialCellSize: 0.25
motionControl:
  maxIterations: 4
  cosAlignmentAcceptanceAngle: 0.984
  cosInsertionAcceptanceAngle: 0.99
  relaxationModel:
    type: rampHoldFall
    coeffs:
      rampStartRelaxation: 0.3
      rampEndRelaxation: 0.6
      fallEndRelaxation: 0
      rampEndFraction: 0.2
      fallStartFraction: 0.8
cellShapeControl:
  defaultCellSize: 0.25
precision: exact
seed: 7
`

func TestLoadConfig(t *testing.T) {
	cfg, err := Load(strings.NewReader(boxConfig))
	require.NoError(t, err)
	require.Equal(t, "bodyCentredCubic", cfg.InitialPoints.Type)
	require.Equal(t, 0.25, cfg.InitialPoints.Coeffs["initialCellSize"])
	require.Equal(t, 4, cfg.MotionControl.MaxIterations)
	require.Equal(t, "rampHoldFall", cfg.MotionControl.RelaxationModel.Type)
	require.Equal(t, "piecewiseLinearRamp", cfg.MotionControl.FaceAreaWeightModel.Type)
	require.Equal(t, 0.65, cfg.MotionControl.RemovalDistCoeff)
	require.Equal(t, 0.1, cfg.SurfaceConformation.PointPairDistanceCoeff)
	require.Equal(t, 5, cfg.BackgroundMeshDecomposition.MaxReferralIterations)
	require.Equal(t, int64(7), cfg.Seed)
	require.InDelta(t, 0.984, *cfg.MotionControl.CosAlignmentAcceptanceAngle, 0)
}

func TestLoadConfigErrors(t *testing.T) {
	for _, test := range []struct {
		name    string
		replace [2]string
		key     string
	}{
		{"unknown key", [2]string{"seed: 7", "sead: 7"}, "(document)"},
		{"cosine range", [2]string{"0.984", "1.5"}, "motionControl.cosAlignmentAcceptanceAngle"},
		{"missing cosine", [2]string{"cosInsertionAcceptanceAngle: 0.99", ""}, "motionControl.cosInsertionAcceptanceAngle"},
		{"unknown method", [2]string{"bodyCentredCubic", "hexagonal"}, "initialPoints.type"},
		{"relaxation coeffs", [2]string{"rampEndFraction: 0.2", "rampEndFraction: 0.9"}, "motionControl.relaxationModel"},
		{"cell size", [2]string{"defaultCellSize: 0.25", "defaultCellSize: -1"}, "cellShapeControl.defaultCellSize"},
		{"precision", [2]string{"precision: exact", "precision: rational"}, "precision"},
		{"iterations", [2]string{"maxIterations: 4", "maxIterations: -2"}, "motionControl.maxIterations"},
	} {
		t.Run(test.name, func(t *testing.T) {
			src := strings.Replace(boxConfig, test.replace[0], test.replace[1], 1)
			_, err := Load(strings.NewReader(src))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrConfig), "%v", err)
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			require.Equal(t, test.key, cerr.Key)
		})
	}
}

func TestValidateNoSurfaces(t *testing.T) {
	err := Config{}.WithDefaults().Validate()
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "geometry.surfaces", cerr.Key)
}
