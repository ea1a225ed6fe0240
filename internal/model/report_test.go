package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionScoreWeighted(t *testing.T) {
	d := DimensionScore{Score: 85, Weight: 0.4}
	assert.InDelta(t, 34.0, d.WeightedScore(), 1e-9)

	zero := DimensionScore{Score: 85}
	assert.Equal(t, 0.0, zero.WeightedScore())
}

func TestDimensionScoreJSONLabels(t *testing.T) {
	d := DimensionScore{
		Dimension:     "目标达成度",
		Score:         55,
		Weight:        0.4,
		Rating:        RatingBelow,
		VetoTriggered: true,
	}

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"不合格"`)
	assert.Contains(t, string(data), `"is_veto":true`)

	var back DimensionScore
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, RatingBelow, back.Rating)
}
