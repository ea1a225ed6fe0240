package report

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/edforge/eval-cli/internal/review"
)

// WriteScoreSheet writes the batch aggregation summary as an xlsx workbook:
// one block per subject with a total row, category rows, and dimension rows,
// score columns 第N次 plus 均值 and 方差.
func WriteScoreSheet(summary *review.Summary, path string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("评分表")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	writeHeader(sheet, summary.Attempts)

	for _, sub := range summary.Subjects {
		totalLabel := fmt.Sprintf("总分（%s分）", formatMark(sub.FullMark))
		writeSeriesRow(sheet, sub.Name, totalLabel, sub.TotalScores, sub.Mean, sub.Variance)

		for _, cat := range sub.Categories {
			label := cat.Name
			if cat.Total > 0 {
				label = fmt.Sprintf("%s（%s分）", cat.Name, formatMark(cat.Total))
			}
			writeSeriesRow(sheet, "", label, cat.Scores, cat.Mean, cat.Variance)
		}
		for _, dim := range sub.Dimensions {
			writeSeriesRow(sheet, "", dim.Name, dim.Scores, dim.Mean, dim.Variance)
		}

		sheet.AddRow() // blank separator between subjects
	}

	sheet.SetColWidth(0, 1, 18)
	sheet.SetColWidth(2, summary.Attempts+3, 12)

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "report: save score sheet")
	}
	return nil
}

func writeHeader(sheet *xlsx.Sheet, attempts int) {
	headerStyle := xlsx.NewStyle()
	headerStyle.Font.Bold = true
	headerStyle.ApplyFont = true
	headerStyle.Alignment.Horizontal = "center"
	headerStyle.Alignment.Vertical = "center"
	headerStyle.ApplyAlignment = true

	headers := []string{"档次/学生", "评价维度"}
	for i := 1; i <= attempts; i++ {
		headers = append(headers, fmt.Sprintf("第%d次", i))
	}
	headers = append(headers, "均值", "方差")

	row := sheet.AddRow()
	for _, h := range headers {
		cell := row.AddCell()
		cell.SetString(h)
		cell.SetStyle(headerStyle)
	}
}

func writeSeriesRow(sheet *xlsx.Sheet, subject, label string, scores []*float64, mean, variance *float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(subject)
	row.AddCell().SetString(label)
	for _, s := range scores {
		cell := row.AddCell()
		if s != nil {
			cell.SetFloat(*s)
		}
	}
	writeStat(row, mean)
	writeStat(row, variance)
}

func writeStat(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(round2(*v))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatMark(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
