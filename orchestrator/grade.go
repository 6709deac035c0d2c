package orchestrator

import "github.com/mercury-testing/perfcore/mconfig"

// DefaultGrade maps score to a letter grade using mconfig's default
// A/B/C/D/F bands (90/80/70/60), equivalent to
// mconfig.NewConfig().Grade(score).
func DefaultGrade(score float64) string {
	return mconfig.GradeFor(mconfig.DefaultGradeBands, score)
}
