package infty

// ProgressReporter observes run milestones. Implementations must be safe to
// call from concurrent orchestrator goroutines and must not block.
type ProgressReporter interface {
	ObjectivePosted(objective string)
	WaitingForSolver()
	SolverEvent(event EventMsg)
	RoleEvent(role string, event EventMsg)
	SolverAgentMessage(message string)
	DirectionRequest(prompt string)
	DirectorResponse(directive DirectiveResponse)
	VerificationRequest(claimPath, notes string)
	VerifierVerdict(role string, verdict VerifierVerdict)
	VerificationSummary(summary AggregatedVerifierVerdict)
	FinalDelivery(deliverablePath, summary string)
	RunInterrupted()
}

// NoopProgress discards all milestones.
type NoopProgress struct{}

func (NoopProgress) ObjectivePosted(string)                        {}
func (NoopProgress) WaitingForSolver()                             {}
func (NoopProgress) SolverEvent(EventMsg)                          {}
func (NoopProgress) RoleEvent(string, EventMsg)                    {}
func (NoopProgress) SolverAgentMessage(string)                     {}
func (NoopProgress) DirectionRequest(string)                       {}
func (NoopProgress) DirectorResponse(DirectiveResponse)            {}
func (NoopProgress) VerificationRequest(string, string)            {}
func (NoopProgress) VerifierVerdict(string, VerifierVerdict)       {}
func (NoopProgress) VerificationSummary(AggregatedVerifierVerdict) {}
func (NoopProgress) FinalDelivery(string, string)                  {}
func (NoopProgress) RunInterrupted()                               {}
