package infty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/everydev1618/infty/llm"
)

// solverReprompt is posted when the solver replies with no recognizable
// envelope.
const solverReprompt = `Reply with exactly one JSON envelope: {"type":"direction_request",...}, {"type":"verification_request",...}, or {"type":"final_delivery",...}.`

// solverRepromptBudget bounds how many re-prompts unrecognized solver
// replies may trigger over a run before the run fails. Recognized replies
// do not restore the budget.
const solverRepromptBudget = 2

// verifierReplaceThreshold is how many consecutive failing rounds by the
// same verifier role trigger an adapter replacement.
const verifierReplaceThreshold = 1

// InftyOrchestrator drives solver/director/verifier runs to a verified
// deliverable.
type InftyOrchestrator struct {
	hub      *CrossSessionHub
	runsRoot string
	backend  llm.LLM
	progress ProgressReporter
	logger   *slog.Logger
	index    *RunIndex
}

// OrchestratorOption configures an InftyOrchestrator.
type OrchestratorOption func(*InftyOrchestrator)

// WithRunsRoot sets the directory under which run stores are created.
func WithRunsRoot(dir string) OrchestratorOption {
	return func(o *InftyOrchestrator) {
		o.runsRoot = dir
	}
}

// WithBackend sets the default LLM backend for spawned roles.
func WithBackend(backend llm.LLM) OrchestratorOption {
	return func(o *InftyOrchestrator) {
		o.backend = backend
	}
}

// WithProgress sets the progress reporter.
func WithProgress(progress ProgressReporter) OrchestratorOption {
	return func(o *InftyOrchestrator) {
		o.progress = progress
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *InftyOrchestrator) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// WithRunIndex sets the run catalog that records run lifecycle states.
func WithRunIndex(index *RunIndex) OrchestratorOption {
	return func(o *InftyOrchestrator) {
		o.index = index
	}
}

// NewOrchestrator creates an orchestrator with its own hub.
func NewOrchestrator(opts ...OrchestratorOption) *InftyOrchestrator {
	o := &InftyOrchestrator{
		hub:      NewHub(),
		progress: NoopProgress{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Hub returns the orchestrator's cross-session hub.
func (o *InftyOrchestrator) Hub() *CrossSessionHub {
	return o.hub
}

// NewRunID generates a timestamp-derived run id.
func NewRunID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.New().String()[:8]
}

// DefaultRunsRoot returns ~/.infty, falling back to a relative .infty when
// the home directory is unknown.
func DefaultRunsRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".infty"
	}
	return filepath.Join(home, ".infty")
}

// ExecuteNewRun creates the run store, spawns all roles, and drives the
// orchestration loop to a RunOutcome. Without an objective the run is
// created and registered but not driven, and the outcome is nil.
func (o *InftyOrchestrator) ExecuteNewRun(ctx context.Context, params RunParams, options RunExecutionOptions) (*RunOutcome, error) {
	if params.RunID == "" {
		params.RunID = NewRunID()
	}
	if options.DirectorTimeout <= 0 {
		options.DirectorTimeout = DefaultDirectorTimeout
	}
	if options.VerifierTimeout <= 0 {
		options.VerifierTimeout = DefaultVerifierTimeout
	}

	sessions, err := o.spawnRunSessions(params)
	if err != nil {
		return nil, err
	}
	defer sessions.Close()

	if o.index != nil {
		if err := o.index.RecordCreated(params.RunID, sessions.Store.Root(), options.objective()); err != nil {
			return nil, err
		}
	}

	outcome, err := o.driveRun(ctx, sessions, options)
	o.recordTerminal(params.RunID, outcome, err)
	return outcome, err
}

// spawnRunSessions creates the run store and all role sessions.
func (o *InftyOrchestrator) spawnRunSessions(params RunParams) (*RunSessions, error) {
	runRoot := params.RunRoot
	if runRoot == "" {
		root := o.runsRoot
		if root == "" {
			root = DefaultRunsRoot()
		}
		runRoot = filepath.Join(root, params.RunID)
	}

	roles := append([]RoleConfig{params.Solver, params.Director}, params.Verifiers...)
	store, err := CreateRunStore(runRoot, roles)
	if err != nil {
		return nil, err
	}

	sessions := &RunSessions{RunID: params.RunID, Store: store}

	solver, err := SpawnRole(o.hub, params.RunID, runRoot, params.Solver, o.backend, o.logger)
	if err != nil {
		return nil, err
	}
	sessions.Solver = solver

	director, err := SpawnRole(o.hub, params.RunID, runRoot, params.Director, o.backend, o.logger)
	if err != nil {
		sessions.Close()
		return nil, err
	}
	sessions.Director = director

	for _, vc := range params.Verifiers {
		verifier, err := SpawnRole(o.hub, params.RunID, runRoot, vc, o.backend, o.logger)
		if err != nil {
			sessions.Close()
			return nil, err
		}
		sessions.Verifiers = append(sessions.Verifiers, verifier)
	}

	return sessions, nil
}

// recordTerminal transitions the run's catalog row to its terminal state.
func (o *InftyOrchestrator) recordTerminal(runID string, outcome *RunOutcome, err error) {
	if o.index == nil {
		return
	}

	var recErr error
	switch {
	case outcome != nil:
		recErr = o.index.RecordOutcome(runID, RunCompleted, outcome.DeliverablePath, outcome.Summary)
	case errors.Is(err, ErrRunInterrupted):
		recErr = o.index.RecordOutcome(runID, RunInterrupted, "", "")
	case err != nil:
		recErr = o.index.RecordOutcome(runID, RunFailed, "", "")
	}
	if recErr != nil {
		o.logger.Warn("failed to record run outcome", "run_id", runID, "error", recErr)
	}
}

// solverEvents forwards the solver's role events to the dedicated solver
// milestone alongside the generic one.
type solverEvents struct {
	ProgressReporter
}

func (s solverEvents) RoleEvent(role string, event EventMsg) {
	s.ProgressReporter.SolverEvent(event)
	s.ProgressReporter.RoleEvent(role, event)
}

// driveRun runs phases S1-S4 over spawned sessions.
func (o *InftyOrchestrator) driveRun(ctx context.Context, sessions *RunSessions, options RunExecutionOptions) (outcome *RunOutcome, err error) {
	runID := sessions.RunID
	logger := o.logger.With("run_id", runID)

	defer func() {
		if isCancelled(err) {
			o.progress.RunInterrupted()
			err = fmt.Errorf("%w: %s", ErrRunInterrupted, runID)
		}
	}()

	objective := options.objective()
	if objective != "" {
		o.progress.ObjectivePosted(objective)
	}

	director := NewDirectorRole(o.hub, runID, sessions.Director.Role, options.DirectorTimeout, o.progress)
	pool := NewVerifierPool(o.hub, sessions, options.VerifierTimeout, o.progress)

	solverProgress := solverEvents{o.progress}
	postSolver := func(text string) (AssistantMessage, error) {
		handle, postErr := postTurn(o.hub, runID, sessions.Solver.Role, text, nil)
		if postErr != nil {
			return AssistantMessage{}, &RunError{RunID: runID, Role: sessions.Solver.Role, Err: postErr}
		}
		o.progress.WaitingForSolver()
		reply, waitErr := awaitFirstIdle(ctx, o.hub, handle, options.DirectorTimeout, solverProgress, sessions.Solver.Role)
		if waitErr != nil {
			if isCancelled(waitErr) {
				return AssistantMessage{}, waitErr
			}
			return AssistantMessage{}, &RunError{RunID: runID, Role: sessions.Solver.Role, SubmissionID: handle.SubmissionID(), Err: waitErr}
		}
		o.progress.SolverAgentMessage(reply.Message)
		return reply, nil
	}

	// S1: objective injection. Without an objective there is nothing to
	// drive; the run store and sessions exist, which is all a bare
	// `create` asks for.
	if objective == "" {
		o.progress.WaitingForSolver()
		return nil, nil
	}

	reply, err := postSolver(objective)
	if err != nil {
		return nil, err
	}

	// S2: dispatch loop.
	repromptBudget := solverRepromptBudget
	verificationPassed := false
	finalizeNudged := false
	consecutiveFails := make(map[string]int)

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		signal, ok := ParseSolverSignal(reply.Message)
		if !ok {
			// S3: after a passing verification round the solver is
			// required to deliver; nudge once with the finalization
			// prompt before spending the re-prompt budget.
			if verificationPassed && !finalizeNudged {
				finalizeNudged = true
				reply, err = postSolver(FinalizationPrompt)
				if err != nil {
					return nil, err
				}
				continue
			}
			if repromptBudget == 0 {
				return nil, &RunError{RunID: runID, Role: sessions.Solver.Role, Err: ErrSolverSignalBudget}
			}
			repromptBudget--
			logger.Info("unrecognized solver reply, re-prompting", "budget_left", repromptBudget)
			reply, err = postSolver(solverReprompt)
			if err != nil {
				return nil, err
			}
			continue
		}

		switch signal.Type {
		case SignalDirectionRequest:
			o.progress.DirectionRequest(signal.Prompt)
			directive, callErr := director.Call(ctx, NewDirectionRequestPayload(signal.Prompt, firstNonEmpty(signal.Objective, objective)))
			if callErr != nil {
				if isCancelled(callErr) {
					return nil, callErr
				}
				return nil, &RunError{RunID: runID, Role: sessions.Director.Role, Err: callErr}
			}
			o.progress.DirectorResponse(directive)
			reply, err = postSolver(directive.Directive)
			if err != nil {
				return nil, err
			}

		case SignalVerificationRequest:
			o.progress.VerificationRequest(signal.ClaimPath, signal.Notes)
			if _, resolveErr := sessions.Store.ResolveDeliverablePath(signal.ClaimPath); resolveErr != nil {
				return nil, &RunError{RunID: runID, Role: sessions.Solver.Role, Err: fmt.Errorf("invalid claim path: %w", resolveErr)}
			}

			round := VerificationRound{Summary: AggregateVerdicts(nil)}
			if !pool.IsEmpty() {
				request := NewVerificationRequestPayload(signal.ClaimPath, signal.Notes, firstNonEmpty(signal.Objective, objective))
				var roundErr error
				round, roundErr = pool.CollectRound(ctx, request)
				if roundErr != nil {
					if isCancelled(roundErr) {
						return nil, roundErr
					}
					return nil, &RunError{RunID: runID, Role: "verifier-pool", Err: roundErr}
				}
			}
			o.progress.VerificationSummary(round.Summary)

			if round.Summary.Overall.IsPass() {
				verificationPassed = true
				finalizeNudged = false
				clear(consecutiveFails)
			} else {
				passing := make(map[string]bool, len(round.PassingRoles))
				for _, role := range round.PassingRoles {
					passing[role] = true
				}
				for _, report := range round.Summary.Verdicts {
					if passing[report.Role] {
						delete(consecutiveFails, report.Role)
						continue
					}
					consecutiveFails[report.Role]++
					if consecutiveFails[report.Role] >= verifierReplaceThreshold {
						logger.Info("replacing verifier adapter", "role", report.Role)
						pool.ReplaceRole(report.Role)
						delete(consecutiveFails, report.Role)
					}
				}
			}

			feedback, feedbackErr := prettyJSON(round.Summary)
			if feedbackErr != nil {
				return nil, feedbackErr
			}
			reply, err = postSolver(feedback)
			if err != nil {
				return nil, err
			}

		case SignalFinalDelivery:
			// S4: deliverable resolution.
			resolved, resolveErr := sessions.Store.ResolveDeliverablePath(signal.DeliverablePath)
			if resolveErr != nil {
				return nil, &RunError{RunID: runID, Role: sessions.Solver.Role, Err: fmt.Errorf("invalid deliverable: %w", resolveErr)}
			}
			o.progress.FinalDelivery(resolved, signal.Summary)
			return &RunOutcome{
				RunID:           runID,
				DeliverablePath: resolved,
				Summary:         signal.Summary,
				RawMessage:      reply.Message,
			}, nil
		}
	}
}

// isCancelled reports whether err stems from context cancellation.
func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
