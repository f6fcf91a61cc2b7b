package risk

import "strings"

// Rating is the coarse tier derived from a 0–100 risk score.
type Rating string

const (
	RatingLow    Rating = "Low"
	RatingMedium Rating = "Medium"
	RatingHigh   Rating = "High"
)

const (
	// MinScore and MaxScore bound every risk score in the system.
	MinScore = 0
	MaxScore = 100
)

// Thresholds are the tier boundaries shared by the per-token scorer and the
// wallet-level advisor. A score strictly above High is rated High, strictly
// above Medium is rated Medium, anything else is Low.
type Thresholds struct {
	High   int `yaml:"high"`
	Medium int `yaml:"medium"`
}

// DefaultThresholds returns the production tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 70, Medium: 40}
}

// Rate maps a score to its tier. Monotonic in score.
func (t Thresholds) Rate(score int) Rating {
	switch {
	case score > t.High:
		return RatingHigh
	case score > t.Medium:
		return RatingMedium
	default:
		return RatingLow
	}
}

// IsHigh reports whether score falls in the High tier.
func (t Thresholds) IsHigh(score int) bool {
	return score > t.High
}

// AboveHigh is IsHigh for scores that arrive as JSON numbers.
func (t Thresholds) AboveHigh(score float64) bool {
	return score > float64(t.High)
}

// Valid reports whether the thresholds are ordered and inside the score range.
func (t Thresholds) Valid() bool {
	return t.Medium >= MinScore && t.High > t.Medium && t.High <= MaxScore
}

// Clamp bounds a score to [MinScore, MaxScore].
func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ParseRating accepts any casing of a tier name.
func ParseRating(s string) (Rating, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RatingLow, true
	case "medium":
		return RatingMedium, true
	case "high":
		return RatingHigh, true
	}
	return "", false
}
