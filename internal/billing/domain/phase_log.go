package billing

// PhaseStatus is the outcome of one pipeline phase.
type PhaseStatus string

const (
	PhaseStatusOK    PhaseStatus = "OK"
	PhaseStatusError PhaseStatus = "ERROR"
)

// PhaseEntry is one line of the phase log.
type PhaseEntry struct {
	Status  PhaseStatus `json:"status"`
	Message string      `json:"message"`
}

// PhaseLog is the ordered, in-memory record of a run. It is never persisted.
type PhaseLog []PhaseEntry

// OK appends a success entry.
func (l *PhaseLog) OK(message string) {
	*l = append(*l, PhaseEntry{Status: PhaseStatusOK, Message: message})
}

// Error appends a failure entry.
func (l *PhaseLog) Error(message string) {
	*l = append(*l, PhaseEntry{Status: PhaseStatusError, Message: message})
}

// Errors counts the failure entries.
func (l PhaseLog) Errors() int {
	count := 0
	for _, entry := range l {
		if entry.Status == PhaseStatusError {
			count++
		}
	}
	return count
}
