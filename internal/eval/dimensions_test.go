package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDimensions(t *testing.T) {
	specs := DefaultDimensions()
	require.Len(t, specs, 6)

	var sum float64
	vetoCount := 0
	for _, s := range specs {
		sum += s.Weight
		if s.Veto {
			vetoCount++
			assert.Equal(t, "teaching_goal_completion", s.Key)
			assert.Equal(t, 60.0, s.VetoThreshold)
		}
		_, registered := promptBuilders[s.Key]
		assert.True(t, registered, "no prompt builder for %s", s.Key)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, 1, vetoCount)
	assert.Equal(t, 0.40, specs[0].Weight)
}

func TestLoadDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dimensions.yaml")
	data := `
- key: teaching_goal_completion
  weight: 0.6
  veto: true
  veto_threshold: 70
- key: interaction_experience
  name: 体验
  weight: 0.4
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	specs, err := LoadDimensions(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	// Missing name falls back to the built-in spec for the same key.
	assert.Equal(t, "目标达成度", specs[0].Name)
	assert.Equal(t, 0.6, specs[0].Weight)
	assert.Equal(t, 70.0, specs[0].VetoThreshold)
	assert.Equal(t, "体验", specs[1].Name)
}

func TestLoadDimensions_MissingFile(t *testing.T) {
	_, err := LoadDimensions(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read dimensions file")
}

func TestValidateDimensions(t *testing.T) {
	cases := []struct {
		name    string
		specs   []DimensionSpec
		wantErr string
	}{
		{
			name:    "empty set",
			specs:   nil,
			wantErr: "no dimensions configured",
		},
		{
			name: "empty key",
			specs: []DimensionSpec{
				{Key: "", Weight: 1},
			},
			wantErr: "empty key",
		},
		{
			name: "duplicate key",
			specs: []DimensionSpec{
				{Key: "robustness", Weight: 0.5},
				{Key: "robustness", Weight: 0.5},
			},
			wantErr: "duplicate dimension key",
		},
		{
			name: "unknown key",
			specs: []DimensionSpec{
				{Key: "typing_speed", Weight: 1},
			},
			wantErr: "no prompt builder registered",
		},
		{
			name: "negative weight",
			specs: []DimensionSpec{
				{Key: "robustness", Weight: -0.1},
			},
			wantErr: "negative weight",
		},
		{
			name: "veto threshold out of range",
			specs: []DimensionSpec{
				{Key: "teaching_goal_completion", Weight: 1, Veto: true, VetoThreshold: 120},
			},
			wantErr: "veto threshold out of range",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDimensions(tc.specs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	// Weights that do not sum to 1.0 only warn.
	assert.NoError(t, ValidateDimensions([]DimensionSpec{
		{Key: "robustness", Weight: 0.5},
	}))
}
