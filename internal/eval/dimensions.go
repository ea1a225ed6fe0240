// Package eval implements the multi-dimension weighted evaluation engine:
// dimension specs, prompt construction, oracle judging, and report assembly.
package eval

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DimensionSpec is the static configuration of one evaluation dimension.
// Specs are never mutated at runtime; scores snapshot the weight at
// evaluation time so later config edits cannot corrupt stored reports.
type DimensionSpec struct {
	Key           string  `yaml:"key"`
	Name          string  `yaml:"name"`
	Weight        float64 `yaml:"weight"`
	Veto          bool    `yaml:"veto"`
	VetoThreshold float64 `yaml:"veto_threshold"`
}

// DefaultDimensions returns the built-in dimension set in evaluation order.
// Goal completion carries the highest weight and is the only veto dimension.
func DefaultDimensions() []DimensionSpec {
	return []DimensionSpec{
		{Key: "teaching_goal_completion", Name: "目标达成度", Weight: 0.40, Veto: true, VetoThreshold: 60},
		{Key: "teaching_strategy", Name: "策略引导力", Weight: 0.20},
		{Key: "workflow_consistency", Name: "流程遵循度", Weight: 0.15},
		{Key: "interaction_experience", Name: "交互体验感", Weight: 0.10},
		{Key: "hallucination_control", Name: "幻觉控制力", Weight: 0.10},
		{Key: "robustness", Name: "异常处理力", Weight: 0.05},
	}
}

// LoadDimensions reads a dimension set from a YAML file, preserving file
// order. Missing names fall back to the built-in spec for the same key.
func LoadDimensions(path string) ([]DimensionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "eval: read dimensions file")
	}

	var specs []DimensionSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, eris.Wrap(err, "eval: parse dimensions file")
	}

	defaults := make(map[string]DimensionSpec)
	for _, d := range DefaultDimensions() {
		defaults[d.Key] = d
	}
	for i := range specs {
		if specs[i].Name == "" {
			if d, ok := defaults[specs[i].Key]; ok {
				specs[i].Name = d.Name
			}
		}
	}

	if err := ValidateDimensions(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ValidateDimensions checks that every spec has a registered prompt builder
// and a sane weight. Weights are deliberately NOT required to sum to 1.0;
// a deviating sum only produces a warning because the total score is simply
// the weighted sum.
func ValidateDimensions(specs []DimensionSpec) error {
	if len(specs) == 0 {
		return eris.New("eval: no dimensions configured")
	}

	var sum float64
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Key == "" {
			return eris.New("eval: dimension with empty key")
		}
		if seen[s.Key] {
			return eris.Errorf("eval: duplicate dimension key %q", s.Key)
		}
		seen[s.Key] = true
		if _, ok := promptBuilders[s.Key]; !ok {
			return eris.Errorf("eval: no prompt builder registered for dimension %q", s.Key)
		}
		if s.Weight < 0 {
			return eris.Errorf("eval: dimension %q has negative weight", s.Key)
		}
		if s.Veto && (s.VetoThreshold < 0 || s.VetoThreshold > 100) {
			return eris.Errorf("eval: dimension %q veto threshold out of range", s.Key)
		}
		sum += s.Weight
	}

	if math.Abs(sum-1.0) > 1e-9 {
		zap.L().Warn("dimension weights do not sum to 1.0, total score will not be 0-100",
			zap.Float64("weight_sum", sum),
		)
	}
	return nil
}
