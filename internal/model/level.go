package model

// Rating is the closed set of per-dimension quality labels produced by the
// scoring oracle. The external (serialized) vocabulary is Chinese; core logic
// only ever compares Rating values, never raw strings.
type Rating int

const (
	RatingExcellent Rating = iota
	RatingGood
	RatingPass
	RatingBelow
	RatingPoor
)

var ratingLabels = map[Rating]string{
	RatingExcellent: "优秀",
	RatingGood:      "良好",
	RatingPass:      "合格",
	RatingBelow:     "不合格",
	RatingPoor:      "较差",
}

// String returns the external label for the rating.
func (r Rating) String() string {
	if s, ok := ratingLabels[r]; ok {
		return s
	}
	return ratingLabels[RatingPass]
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown labels map to
// RatingPass so a sloppy oracle response cannot poison a report.
func (r *Rating) UnmarshalText(text []byte) error {
	parsed, ok := ParseRating(string(text))
	if !ok {
		parsed = RatingPass
	}
	*r = parsed
	return nil
}

// ParseRating maps an external label back to a Rating. The second return is
// false when the label is not part of the vocabulary.
func ParseRating(label string) (Rating, bool) {
	for r, s := range ratingLabels {
		if s == label {
			return r, true
		}
	}
	return RatingPass, false
}

// Level is the final verdict of a full evaluation. Veto is not derivable from
// the total score: a single veto-capable dimension below its threshold forces
// it regardless of the weighted total.
type Level int

const (
	LevelExcellent Level = iota
	LevelGood
	LevelPass
	LevelFail
	LevelVeto
)

var levelLabels = map[Level]string{
	LevelExcellent: "优秀",
	LevelGood:      "良好",
	LevelPass:      "合格",
	LevelFail:      "不合格",
	LevelVeto:      "一票否决",
}

// String returns the external label for the level.
func (l Level) String() string {
	if s, ok := levelLabels[l]; ok {
		return s
	}
	return levelLabels[LevelFail]
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	for lv, s := range levelLabels {
		if s == string(text) {
			*l = lv
			return nil
		}
	}
	*l = LevelFail
	return nil
}

// Passing reports whether the level satisfies the pass criteria.
func (l Level) Passing() bool {
	return l != LevelFail && l != LevelVeto
}

// LevelForScore maps a weighted total score to a Level. Veto is decided
// upstream and takes precedence; this covers the score-derived tiers only.
func LevelForScore(total float64) Level {
	switch {
	case total >= 90:
		return LevelExcellent
	case total >= 75:
		return LevelGood
	case total >= 60:
		return LevelPass
	default:
		return LevelFail
	}
}
