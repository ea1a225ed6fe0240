// Package review drives batch consistency grading: repeated submissions of
// the same homework artifacts, core-score extraction, and per-subject
// statistics over the resulting attempts.
package review

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/pkg/cloudgrade"
)

// Question names start with their type, e.g. "单项选择题第1题".
var categoryPattern = regexp.MustCompile(`^([\x{4e00}-\x{9fa5}]+题)`)

// CategoryFromName classifies a question name into its category prefix.
// Unmatched names yield "" and are dropped from category rollups.
func CategoryFromName(name string) string {
	if name == "" {
		return ""
	}
	if m := categoryPattern.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	// Names like "案例分析题第1问" carry a 问 suffix instead of 题.
	if strings.Contains(name, "案例分析") {
		return "案例分析题"
	}
	return ""
}

// coreData is the grading service's score payload.
type coreData struct {
	TotalScore      *float64 `json:"totalScore"`
	FullMark        *float64 `json:"fullMark"`
	DimensionScores []struct {
		EvaluationDimension string   `json:"evaluationDimension"`
		DimensionScore      *float64 `json:"dimensionScore"`
	} `json:"dimensionScores"`
	QuestionScores []struct {
		Name       string  `json:"name"`
		Score      float64 `json:"score"`
		TotalScore float64 `json:"totalScore"`
	} `json:"questionScores"`
}

// ExtractCoreData pulls the scores out of a grading result payload. Completed
// tasks nest the payload under artifacts[0].parts[0].data; immediate results
// carry it at the top level.
func ExtractCoreData(raw json.RawMessage) (*model.AttemptData, error) {
	if len(raw) == 0 {
		return nil, eris.New("review: empty grading result")
	}

	var wrapper struct {
		Artifacts []cloudgrade.Artifact `json:"artifacts"`
	}
	payload := raw
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Artifacts) > 0 {
		parts := wrapper.Artifacts[0].Parts
		if len(parts) == 0 || len(parts[0].Data) == 0 {
			return nil, eris.New("review: grading artifact has no data part")
		}
		payload = parts[0].Data
	}

	var core coreData
	if err := json.Unmarshal(payload, &core); err != nil {
		return nil, eris.Wrap(err, "review: decode core score data")
	}

	fullMark := 100.0
	if core.FullMark != nil {
		fullMark = *core.FullMark
	}

	data := &model.AttemptData{
		TotalScore: core.TotalScore,
		FullMark:   fullMark,
		Dimensions: make([]model.DimensionResult, 0, len(core.DimensionScores)),
		Categories: rollupCategories(core),
	}
	for _, d := range core.DimensionScores {
		name := d.EvaluationDimension
		if name == "" {
			name = "未命名维度"
		}
		data.Dimensions = append(data.Dimensions, model.DimensionResult{Name: name, Score: d.DimensionScore})
	}
	return data, nil
}

// rollupCategories sums question scores by category, preserving first-seen
// category order.
func rollupCategories(core coreData) []model.CategoryResult {
	var order []string
	byName := make(map[string]*model.CategoryResult)

	for _, q := range core.QuestionScores {
		category := CategoryFromName(q.Name)
		if category == "" {
			continue
		}
		entry, ok := byName[category]
		if !ok {
			entry = &model.CategoryResult{Name: category}
			byName[category] = entry
			order = append(order, category)
		}
		entry.Score += q.Score
		entry.Total += q.TotalScore
	}

	out := make([]model.CategoryResult, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}
