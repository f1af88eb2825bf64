package hazard

// Severity covers both vocabularies: CRITICAL/WARNING/ADVISORY/INFO for
// road events and community reports, Extreme/Severe/Moderate/Minor/Unknown
// for weather alerts.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityAdvisory Severity = "ADVISORY"
	SeverityInfo     Severity = "INFO"

	SeverityExtreme  Severity = "Extreme"
	SeveritySevere   Severity = "Severe"
	SeverityModerate Severity = "Moderate"
	SeverityMinor    Severity = "Minor"
	SeverityUnknown  Severity = "Unknown"
)

// Rank orders severities across both vocabularies for sorting and
// tie-breaking. Higher is more severe; unrecognized values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical, SeverityExtreme:
		return 4
	case SeverityWarning, SeveritySevere:
		return 3
	case SeverityAdvisory, SeverityModerate:
		return 2
	case SeverityInfo, SeverityMinor:
		return 1
	default:
		return 0
	}
}

// MeetsFloor reports whether s ranks at or above floor. An empty floor
// admits everything.
func (s Severity) MeetsFloor(floor Severity) bool {
	if floor == "" {
		return true
	}
	return s.Rank() >= floor.Rank()
}
