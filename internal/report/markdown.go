// Package report renders evaluation reports and batch summaries into their
// delivery formats.
package report

import (
	"fmt"
	"strings"

	"github.com/edforge/eval-cli/internal/model"
)

// RenderMarkdown renders one evaluation report as a markdown document.
func RenderMarkdown(r *model.EvaluationReport) string {
	var b strings.Builder

	b.WriteString("# 教学质量评测报告\n\n")
	fmt.Fprintf(&b, "- 报告ID：%s\n", r.ID)
	fmt.Fprintf(&b, "- 任务ID：%s\n", r.TaskID)
	fmt.Fprintf(&b, "- 生成时间：%s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- 总分：%.1f\n", r.TotalScore)
	fmt.Fprintf(&b, "- 最终等级：%s\n", r.FinalLevel)
	fmt.Fprintf(&b, "- 是否通过：%s\n", passLabel(r.PassCriteriaMet))

	if len(r.VetoReasons) > 0 {
		b.WriteString("\n## 一票否决\n\n")
		for _, reason := range r.VetoReasons {
			fmt.Fprintf(&b, "- %s\n", reason)
		}
	}

	b.WriteString("\n## 维度明细\n\n")
	for _, d := range r.Dimensions {
		fmt.Fprintf(&b, "### %s\n\n", d.Dimension)
		fmt.Fprintf(&b, "- 得分：%.1f（权重 %.0f%%，加权 %.1f）\n", d.Score, d.Weight*100, d.WeightedScore())
		fmt.Fprintf(&b, "- 评级：%s\n", d.Rating)
		if d.VetoTriggered {
			b.WriteString("- 触发一票否决\n")
		}
		if d.Analysis != "" {
			fmt.Fprintf(&b, "\n%s\n", d.Analysis)
		}
		writeList(&b, "证据", d.Evidence)
		writeList(&b, "问题", d.Issues)
		writeList(&b, "建议", d.Suggestions)
		b.WriteString("\n")
	}

	if len(r.CriticalIssues) > 0 {
		b.WriteString("## 关键问题\n\n")
		for _, issue := range r.CriticalIssues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
		b.WriteString("\n")
	}

	if len(r.ActionableSuggestions) > 0 {
		b.WriteString("## 改进建议\n\n")
		for i, s := range r.ActionableSuggestions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
		b.WriteString("\n")
	}

	if r.ExecutiveSummary != "" {
		b.WriteString("## 评测摘要\n\n")
		b.WriteString(r.ExecutiveSummary)
		if !strings.HasSuffix(r.ExecutiveSummary, "\n") {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func passLabel(pass bool) string {
	if pass {
		return "通过"
	}
	return "未通过"
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
