package domain

// VerificationLevel is the discrete trust level derived from accumulated
// trajectory metrics. Levels are ordered: none < basic < standard <
// advanced < maximum.
type VerificationLevel string

const (
	LevelNone     VerificationLevel = "none"
	LevelBasic    VerificationLevel = "basic"
	LevelStandard VerificationLevel = "standard"
	LevelAdvanced VerificationLevel = "advanced"
	LevelMaximum  VerificationLevel = "maximum"
)

var levelRank = map[VerificationLevel]int{
	LevelNone:     0,
	LevelBasic:    1,
	LevelStandard: 2,
	LevelAdvanced: 3,
	LevelMaximum:  4,
}

// ParseLevel validates a level name from external input.
func ParseLevel(s string) (VerificationLevel, bool) {
	level := VerificationLevel(s)
	_, ok := levelRank[level]
	return level, ok
}

// Rank returns the ordinal position of the level, 0 for unknown values.
func (l VerificationLevel) Rank() int {
	return levelRank[l]
}

// Meets reports whether l satisfies the required minimum level.
func (l VerificationLevel) Meets(required VerificationLevel) bool {
	return levelRank[l] >= levelRank[required]
}

// LevelRequirements are the floors an identity must meet for a level.
type LevelRequirements struct {
	Breadcrumbs int64   `json:"breadcrumbs"`
	Trust       float64 `json:"trust"`
}
