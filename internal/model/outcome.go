package model

// SyncOutcome is the terminal record for one pair after the retry policy has
// resolved it. Outcomes are immutable once produced.
type SyncOutcome struct {
	// Pair is the pair this outcome belongs to.
	Pair RepoPair

	// Index is the position of the pair in the scheduled input.
	Index int

	// Succeeded reports whether any attempt completed without error.
	Succeeded bool

	// AttemptsUsed is the number of attempts made, at most the configured
	// maximum. It is 0 when the run was canceled before the first attempt.
	AttemptsUsed int

	// LastError holds the detail of the final failed attempt. Empty on success.
	LastError string
}
