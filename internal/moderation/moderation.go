// Package moderation holds the severity weighting applied to user reports.
package moderation

// Weight (reputation penalty) per report severity.
var SeverityWeights = map[string]int{
	"Low":      5,
	"Medium":   50,
	"Critical": 250,
}

const (
	InitialReputation = 1000
	MinReputation     = 0
)

// GetWeight returns the penalty for a given report severity.
// It returns 0 if the severity is not recognized.
func GetWeight(severity string) int {
	return SeverityWeights[severity]
}

// Reputation applies a total report penalty to the starting reputation,
// clamped at the floor.
func Reputation(totalPenalty int) int {
	rep := InitialReputation - totalPenalty
	if rep < MinReputation {
		return MinReputation
	}
	return rep
}
