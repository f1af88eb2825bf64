package hazard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank(t *testing.T) {
	tests := []struct {
		severity Severity
		rank     int
	}{
		{SeverityCritical, 4},
		{SeverityExtreme, 4},
		{SeverityWarning, 3},
		{SeveritySevere, 3},
		{SeverityAdvisory, 2},
		{SeverityModerate, 2},
		{SeverityInfo, 1},
		{SeverityMinor, 1},
		{SeverityUnknown, 0},
		{Severity("bogus"), 0},
		{Severity(""), 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.rank, tt.severity.Rank(), "severity %q", tt.severity)
	}
}

func TestSeverityMeetsFloor(t *testing.T) {
	assert.True(t, SeverityCritical.MeetsFloor(SeverityWarning))
	assert.True(t, SeverityWarning.MeetsFloor(SeverityWarning))
	assert.False(t, SeverityAdvisory.MeetsFloor(SeverityWarning))

	// Cross-vocabulary comparisons work through ranks
	assert.True(t, SeverityExtreme.MeetsFloor(SeverityCritical))
	assert.False(t, SeverityMinor.MeetsFloor(SeverityWarning))

	// No floor admits everything
	assert.True(t, SeverityInfo.MeetsFloor(""))
}
