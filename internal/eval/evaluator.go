package eval

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edforge/eval-cli/internal/model"
	"github.com/edforge/eval-cli/pkg/oracle"
)

// judgeTemperature keeps the oracle near-deterministic when grading.
const judgeTemperature = 0.3

// Judge is the single-call scoring contract the evaluator depends on.
type Judge interface {
	Score(ctx context.Context, prompt string, temperature float64) oracle.Judgment
}

// Evaluator scores transcripts dimension by dimension through a Judge.
type Evaluator struct {
	judge Judge
}

// NewEvaluator creates an Evaluator backed by the given judge.
func NewEvaluator(judge Judge) *Evaluator {
	return &Evaluator{judge: judge}
}

// EvaluateDimension scores one dimension of the (teacherDoc, transcript)
// pair. The weight is snapshotted from the spec and the veto flag derived
// here, once, so the resulting score is self-contained.
func (e *Evaluator) EvaluateDimension(ctx context.Context, spec DimensionSpec, teacherDoc string, t *model.Transcript) (model.DimensionScore, error) {
	build, ok := promptBuilders[spec.Key]
	if !ok {
		return model.DimensionScore{}, eris.Errorf("eval: unknown dimension %q", spec.Key)
	}

	prompt := build(teacherDoc, RenderDialogue(t))
	judgment := e.judge.Score(ctx, prompt, judgeTemperature)

	rating, known := model.ParseRating(judgment.Level)
	if !known {
		zap.L().Debug("oracle rating outside vocabulary, defaulting to pass",
			zap.String("dimension", spec.Key),
			zap.String("level", judgment.Level),
		)
	}

	score := model.DimensionScore{
		Dimension:     spec.Name,
		Score:         judgment.Score,
		Weight:        spec.Weight,
		Rating:        rating,
		Analysis:      judgment.Analysis,
		Evidence:      judgment.Evidence,
		Issues:        judgment.Issues,
		Suggestions:   judgment.Suggestions,
		VetoTriggered: spec.Veto && judgment.Score < spec.VetoThreshold,
	}

	zap.L().Info("dimension scored",
		zap.String("dimension", spec.Name),
		zap.Float64("score", score.Score),
		zap.Bool("veto", score.VetoTriggered),
	)

	return score, nil
}

// RenderDialogue flattens a transcript into the role-tagged text block that
// every dimension prompt embeds. The rendering is deterministic and keeps
// round numbers and speaker roles intact.
func RenderDialogue(t *model.Transcript) string {
	var parts []string
	for _, stage := range t.Stages {
		parts = append(parts, fmt.Sprintf("\n## %s\n", stage.StageName))
		for _, msg := range stage.Messages {
			role := "学生"
			if msg.Role == "assistant" {
				role = "智能体"
			}
			parts = append(parts, fmt.Sprintf("**%s（第%d轮）：** %s\n", role, msg.Round, msg.Content))
		}
	}
	return strings.Join(parts, "\n")
}
