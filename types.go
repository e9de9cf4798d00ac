package infty

import (
	"strings"
	"time"
)

// Default idle timeouts applied per await.
const (
	DefaultDirectorTimeout = 1200 * time.Second
	DefaultVerifierTimeout = 1800 * time.Second
)

// FinalizationPrompt is posted to the solver when it has passed verification
// but has not yet delivered.
const FinalizationPrompt = `Create deliverable/: include compiled artifacts or scripts, usage docs, and tests. Write deliverable/summary.txt capturing the final answer, evidence, and follow-up steps. Also provide deliverable/README.md with overview, manifest (paths and sizes), verification steps, and limitations. Remove scratch files. Reply with JSON: {"type":"final_delivery","deliverable_path":"deliverable/summary.txt","summary":"<answer plus supporting context>"}.`

// RunParams describes the roles to spawn for a new run.
type RunParams struct {
	// RunID identifies the run; caller-supplied or timestamp-derived
	RunID string

	// RunRoot overrides the default <runs_root>/<run_id> directory
	RunRoot string

	// Solver is the singleton solver role
	Solver RoleConfig

	// Director is the singleton director role
	Director RoleConfig

	// Verifiers are the verifier roles, each with a distinct name
	Verifiers []RoleConfig
}

// RunExecutionOptions tunes a single run execution.
type RunExecutionOptions struct {
	// Objective, when non-empty after trimming, is posted to the solver
	// as the first turn
	Objective string

	// DirectorTimeout is the idle timeout for solver and director awaits
	DirectorTimeout time.Duration

	// VerifierTimeout is the idle timeout for verifier awaits
	VerifierTimeout time.Duration
}

// DefaultRunExecutionOptions returns options with the standard timeouts.
func DefaultRunExecutionOptions() RunExecutionOptions {
	return RunExecutionOptions{
		DirectorTimeout: DefaultDirectorTimeout,
		VerifierTimeout: DefaultVerifierTimeout,
	}
}

// objective returns the trimmed objective, or "" when none was provided.
func (o RunExecutionOptions) objective() string {
	return trimToNonEmpty(o.Objective)
}

// RunOutcome is the terminal result of a completed run.
type RunOutcome struct {
	// RunID identifies the run
	RunID string

	// DeliverablePath is the resolved, canonical deliverable location
	DeliverablePath string

	// Summary is the solver's final summary, if any
	Summary string

	// RawMessage is the solver's final_delivery reply verbatim
	RawMessage string
}

// RunSessions is the set of live role sessions plus the run store,
// produced by the spawn phase and consumed by the orchestrator loop.
type RunSessions struct {
	RunID     string
	Solver    *RoleSession
	Director  *RoleSession
	Verifiers []*RoleSession
	Store     *RunStore
}

// Close shuts down every role conversation in the set.
func (s *RunSessions) Close() {
	if s.Solver != nil {
		s.Solver.Close()
	}
	if s.Director != nil {
		s.Director.Close()
	}
	for _, v := range s.Verifiers {
		v.Close()
	}
}

// trimToNonEmpty trims s and returns "" if nothing remains.
func trimToNonEmpty(s string) string {
	return strings.TrimSpace(s)
}
