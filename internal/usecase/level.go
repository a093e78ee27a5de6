package usecase

import "trajectoryd/internal/domain"

// levelFloors is evaluated top-down; the first level whose breadcrumb AND
// trust floors are both met wins.
var levelFloors = []struct {
	level       domain.VerificationLevel
	breadcrumbs int64
	trust       float64
}{
	{domain.LevelMaximum, 500, 80},
	{domain.LevelAdvanced, 100, 50},
	{domain.LevelStandard, 50, 20},
	{domain.LevelBasic, 10, 0},
}

// LevelForMetrics maps accumulated metrics to a verification level. Pure
// and total: every input yields a level.
func LevelForMetrics(breadcrumbCount int64, trustScore float64) domain.VerificationLevel {
	for _, floor := range levelFloors {
		if breadcrumbCount >= floor.breadcrumbs && trustScore >= floor.trust {
			return floor.level
		}
	}
	return domain.LevelNone
}

// RequirementsFor reports the floors for a level, used to tell callers how
// far an identity is from a target.
func RequirementsFor(level domain.VerificationLevel) domain.LevelRequirements {
	for _, floor := range levelFloors {
		if floor.level == level {
			return domain.LevelRequirements{Breadcrumbs: floor.breadcrumbs, Trust: floor.trust}
		}
	}
	return domain.LevelRequirements{}
}

// MeetsMinimum reports whether actual satisfies the required minimum under
// the fixed level order.
func MeetsMinimum(actual, required domain.VerificationLevel) bool {
	return actual.Meets(required)
}
