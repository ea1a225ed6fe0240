package eval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edforge/eval-cli/internal/model"
)

// Evaluate runs every configured dimension in order and assembles the full
// report. A dimension-level error (a contract violation, not an oracle
// hiccup — those are absorbed by the judge) aborts the whole run: no partial
// report is ever emitted.
func (e *Evaluator) Evaluate(ctx context.Context, specs []DimensionSpec, teacherDoc string, t *model.Transcript) (*model.EvaluationReport, error) {
	var (
		scores      []model.DimensionScore
		vetoReasons []string
	)

	for _, spec := range specs {
		score, err := e.EvaluateDimension(ctx, spec, teacherDoc, t)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)

		if score.VetoTriggered {
			vetoReasons = append(vetoReasons, fmt.Sprintf(
				"%s得分%.1f分，低于%.0f分阈值", score.Dimension, score.Score, spec.VetoThreshold))
		}
	}

	var total float64
	for _, s := range scores {
		total += s.WeightedScore()
	}

	level := model.LevelForScore(total)
	if len(vetoReasons) > 0 {
		level = model.LevelVeto
	}

	report := &model.EvaluationReport{
		ID:                    uuid.New().String(),
		TaskID:                t.Metadata.TaskID,
		TotalScore:            total,
		FinalLevel:            level,
		Dimensions:            scores,
		ExecutiveSummary:      executiveSummary(scores, total, level, vetoReasons),
		CriticalIssues:        criticalIssues(scores),
		ActionableSuggestions: actionableSuggestions(scores),
		PassCriteriaMet:       level.Passing(),
		VetoReasons:           append([]string{}, vetoReasons...),
		CreatedAt:             time.Now().UTC(),
	}

	zap.L().Info("evaluation complete",
		zap.String("task_id", report.TaskID),
		zap.Float64("total_score", report.TotalScore),
		zap.String("level", report.FinalLevel.String()),
		zap.Bool("pass", report.PassCriteriaMet),
	)

	return report, nil
}

// executiveSummary renders the short markdown verdict. Best and worst
// dimensions are picked with stable max/min: ties keep the earliest
// dimension in iteration order.
func executiveSummary(scores []model.DimensionScore, total float64, level model.Level, vetoReasons []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## 评测结论: %s (%.1f/100)\n", level, total)

	if len(vetoReasons) > 0 {
		b.WriteString("\n### 一票否决原因\n")
		for _, reason := range vetoReasons {
			fmt.Fprintf(&b, "- %s\n", reason)
		}
	}

	b.WriteString("\n### 各维度得分\n")
	for _, s := range scores {
		fmt.Fprintf(&b, "- **%s**: %.1f/%.0f\n", s.Dimension, s.WeightedScore(), s.Weight*100)
	}

	if len(scores) > 0 {
		best, worst := scores[0], scores[0]
		for _, s := range scores[1:] {
			if s.Score > best.Score {
				best = s
			}
			if s.Score < worst.Score {
				worst = s
			}
		}
		b.WriteString("\n### 核心发现\n")
		fmt.Fprintf(&b, "- **优势**: %s表现最好\n", best.Dimension)
		fmt.Fprintf(&b, "- **待改进**: %s需要重点优化\n", worst.Dimension)
	}

	return b.String()
}

// criticalIssues collects issues from underperforming dimensions: failing
// dimensions (<60) contribute everything, borderline ones ([60,75)) only
// their first two, healthy ones nothing. Order follows dimension iteration
// order, then the original issue order.
func criticalIssues(scores []model.DimensionScore) []string {
	critical := []string{}
	for _, s := range scores {
		switch {
		case s.Score < 60:
			for _, issue := range s.Issues {
				critical = append(critical, fmt.Sprintf("【%s】%s", s.Dimension, issue))
			}
		case s.Score < 75:
			for _, issue := range s.Issues[:min(2, len(s.Issues))] {
				critical = append(critical, fmt.Sprintf("【%s】%s", s.Dimension, issue))
			}
		}
	}
	return critical
}

// actionableSuggestions ranks suggestions worst-dimension-first, keeping at
// most three per dimension and stripping any leading "N." numbering the
// oracle tends to emit.
func actionableSuggestions(scores []model.DimensionScore) []string {
	ranked := make([]model.DimensionScore, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score < ranked[j].Score
	})

	suggestions := []string{}
	for _, s := range ranked {
		for _, raw := range s.Suggestions[:min(3, len(s.Suggestions))] {
			cleaned := stripNumbering(raw)
			if cleaned != "" {
				suggestions = append(suggestions, fmt.Sprintf("【%s】%s", s.Dimension, cleaned))
			}
		}
	}
	return suggestions
}

// stripNumbering removes a leading "N." token from a suggestion.
func stripNumbering(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s[0] < '0' || s[0] > '9' {
		return s
	}
	if _, rest, ok := strings.Cut(s, "."); ok {
		return strings.TrimSpace(rest)
	}
	return s
}
