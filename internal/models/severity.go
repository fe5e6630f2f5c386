package models

// Severity is the classified outcome of a single probe
type Severity string

const (
	SeverityUp       Severity = "up"
	SeverityDegraded Severity = "degraded"
	SeverityDown     Severity = "down"
	SeverityUnknown  Severity = "unknown"
)

// Valid reports whether s is one of the known severities
func (s Severity) Valid() bool {
	switch s {
	case SeverityUp, SeverityDegraded, SeverityDown, SeverityUnknown:
		return true
	}
	return false
}

// Rank orders severities from best to worst. Unknown has no place in the order and ranks -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityUp:
		return 0
	case SeverityDegraded:
		return 1
	case SeverityDown:
		return 2
	default:
		return -1
	}
}

// Failing reports whether s is worse than up
func (s Severity) Failing() bool {
	return s.Rank() > 0
}

// WorseThan reports whether s ranks strictly below other
func (s Severity) WorseThan(other Severity) bool {
	return s.Rank() > other.Rank()
}
