package review

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/edforge/eval-cli/internal/model"
)

// Series is one metric tracked across a subject's attempts: a fixed-length
// slot array (nil = the attempt produced no value) plus population
// statistics over the present slots.
type Series struct {
	Name     string     `json:"name"`
	Total    float64    `json:"total,omitempty"` // category full mark, 0 for dimensions
	Scores   []*float64 `json:"scores"`
	Mean     *float64   `json:"mean"`
	Variance *float64   `json:"variance"`
}

// SubjectSummary aggregates all attempts for one subject.
type SubjectSummary struct {
	Name        string     `json:"name"`
	FullMark    float64    `json:"full_mark"`
	TotalScores []*float64 `json:"total_scores"`
	Mean        *float64   `json:"mean"`
	Variance    *float64   `json:"variance"`
	Categories  []Series   `json:"categories"`
	Dimensions  []Series   `json:"dimensions"`
}

// Summary is the aggregation output consumed by spreadsheet renderers.
type Summary struct {
	Attempts int              `json:"attempts"`
	Subjects []SubjectSummary `json:"subjects"`
}

// MeanVariance computes the population mean and variance over the present
// slots of a series. Both are nil when no slot is present; variance is 0
// when exactly one is.
func MeanVariance(scores []*float64) (mean, variance *float64) {
	var present []float64
	for _, s := range scores {
		if s != nil {
			present = append(present, *s)
		}
	}
	if len(present) == 0 {
		return nil, nil
	}

	var sum float64
	for _, v := range present {
		sum += v
	}
	m := sum / float64(len(present))

	v := 0.0
	if len(present) > 1 {
		var ss float64
		for _, x := range present {
			d := x - m
			ss += d * d
		}
		v = ss / float64(len(present))
	}
	return &m, &v
}

// subjectEntry accumulates one subject's slot arrays during aggregation.
type subjectEntry struct {
	name          string
	fullMark      float64
	totals        []*float64
	categories    map[string]*Series
	categoryOrder []string
	dimensions    map[string]*Series
	dimOrder      []string
}

// Aggregate groups attempts by subject label and builds fixed-length score
// series for the total, each category, and each sub-dimension. Every series
// has exactly attemptTotal slots; attempt indices outside [1, attemptTotal]
// are discarded and counted against the subject like failed attempts.
// Category and dimension order follows first appearance
// across that subject's attempts. Subjects with zero successful attempts are
// excluded with a logged reason.
func Aggregate(attempts []model.Attempt, attemptTotal int) *Summary {
	entries := make(map[string]*subjectEntry)
	var subjectOrder []string
	failures := make(map[string]int)

	for _, a := range attempts {
		if !a.Success || a.Data == nil {
			failures[a.SubjectLabel]++
			continue
		}
		if a.AttemptIndex < 1 || a.AttemptIndex > attemptTotal {
			zap.L().Warn("attempt index out of range, discarding",
				zap.String("subject", a.SubjectLabel),
				zap.Int("attempt", a.AttemptIndex),
				zap.Int("attempt_total", attemptTotal),
			)
			failures[a.SubjectLabel]++
			continue
		}
		slot := a.AttemptIndex - 1

		entry, ok := entries[a.SubjectLabel]
		if !ok {
			entry = &subjectEntry{
				name:       a.SubjectLabel,
				fullMark:   a.Data.FullMark,
				totals:     make([]*float64, attemptTotal),
				categories: make(map[string]*Series),
				dimensions: make(map[string]*Series),
			}
			entries[a.SubjectLabel] = entry
			subjectOrder = append(subjectOrder, a.SubjectLabel)
		}

		entry.totals[slot] = a.Data.TotalScore

		for _, cat := range a.Data.Categories {
			s, ok := entry.categories[cat.Name]
			if !ok {
				s = &Series{Name: cat.Name, Scores: make([]*float64, attemptTotal)}
				entry.categories[cat.Name] = s
				entry.categoryOrder = append(entry.categoryOrder, cat.Name)
			}
			score := cat.Score
			s.Scores[slot] = &score
			// Full mark per category: keep the largest reported value.
			if cat.Total > s.Total {
				s.Total = cat.Total
			}
		}

		for _, dim := range a.Data.Dimensions {
			s, ok := entry.dimensions[dim.Name]
			if !ok {
				s = &Series{Name: dim.Name, Scores: make([]*float64, attemptTotal)}
				entry.dimensions[dim.Name] = s
				entry.dimOrder = append(entry.dimOrder, dim.Name)
			}
			s.Scores[slot] = dim.Score
		}
	}

	for label, count := range failures {
		if _, ok := entries[label]; !ok {
			zap.L().Warn("subject excluded from aggregation, no successful attempts",
				zap.String("subject", label),
				zap.Int("failed_attempts", count),
			)
		}
	}

	SortByLevelRank(subjectOrder)

	summary := &Summary{Attempts: attemptTotal, Subjects: make([]SubjectSummary, 0, len(subjectOrder))}
	for _, label := range subjectOrder {
		entry := entries[label]
		sub := SubjectSummary{
			Name:        entry.name,
			FullMark:    entry.fullMark,
			TotalScores: entry.totals,
		}
		sub.Mean, sub.Variance = MeanVariance(entry.totals)

		for _, name := range entry.categoryOrder {
			s := entry.categories[name]
			s.Mean, s.Variance = MeanVariance(s.Scores)
			sub.Categories = append(sub.Categories, *s)
		}
		for _, name := range entry.dimOrder {
			s := entry.dimensions[name]
			s.Mean, s.Variance = MeanVariance(s.Scores)
			sub.Dimensions = append(sub.Dimensions, *s)
		}

		summary.Subjects = append(summary.Subjects, sub)
	}
	return summary
}

// rankSentinel orders unmatched labels after every known level.
const rankSentinel = 999

// Quality levels in display order, best first.
var levelRanks = []struct {
	label string
	rank  int
}{
	{"优秀", 1},
	{"良好", 2},
	{"中等", 3},
	{"合格", 4},
	{"较差", 5},
}

// LevelRank maps a subject label to its quality-level rank via substring
// match. Labels are NFKC-normalized first so full-width variants still
// match. Unmatched labels rank last.
func LevelRank(label string) int {
	normalized := norm.NFKC.String(label)
	for _, lr := range levelRanks {
		if strings.Contains(normalized, lr.label) {
			return lr.rank
		}
	}
	return rankSentinel
}

// SortByLevelRank orders subject labels best level first, keeping the
// original relative order within a rank.
func SortByLevelRank(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		return LevelRank(labels[i]) < LevelRank(labels[j])
	})
}
