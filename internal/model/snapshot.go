package model

// ProgressSnapshot is the normalized, parsed representation of an external
// process's reported completion state, independent of the source format.
type ProgressSnapshot struct {
	// Fraction is the completion fraction in [0,1].
	Fraction float64
	// Step is the human-readable label of the current phase.
	Step string
	// Metrics holds auxiliary numeric state reported by the process.
	Metrics map[string]float64
	// Failed is set when the source carries a terminal failure marker.
	Failed bool
	// FailureMessage carries the failure marker's message.
	FailureMessage string
}
