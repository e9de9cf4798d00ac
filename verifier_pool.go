package infty

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// VerificationRound is the outcome of one verifier fan-out.
type VerificationRound struct {
	Summary      AggregatedVerifierVerdict
	PassingRoles []string
}

// VerifierPool fans identical verification requests out to every verifier
// in parallel and aggregates the verdicts.
type VerifierPool struct {
	hub      *CrossSessionHub
	runID    string
	timeout  time.Duration
	progress ProgressReporter

	mu    sync.Mutex
	roles []*VerifierRole
}

// NewVerifierPool builds a pool over the run's verifier sessions, in
// configured order.
func NewVerifierPool(hub *CrossSessionHub, sessions *RunSessions, timeout time.Duration, progress ProgressReporter) *VerifierPool {
	roles := make([]*VerifierRole, 0, len(sessions.Verifiers))
	for _, v := range sessions.Verifiers {
		roles = append(roles, NewVerifierRole(hub, sessions.RunID, v.Role, timeout, progress))
	}
	return &VerifierPool{
		hub:      hub,
		runID:    sessions.RunID,
		timeout:  timeout,
		progress: progress,
		roles:    roles,
	}
}

// IsEmpty reports whether the pool has no verifiers.
func (p *VerifierPool) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.roles) == 0
}

// Len returns the number of verifiers in the pool.
func (p *VerifierPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.roles)
}

// CollectRound dispatches the request to every verifier concurrently and
// joins all verdicts. A verifier whose reply fails to parse is recorded as
// a fail verdict carrying the parse context; it does not fail the round.
func (p *VerifierPool) CollectRound(ctx context.Context, request VerificationRequestPayload) (VerificationRound, error) {
	p.mu.Lock()
	roles := make([]*VerifierRole, len(p.roles))
	copy(roles, p.roles)
	p.mu.Unlock()

	type outcome struct {
		role    string
		verdict VerifierVerdict
		err     error
	}

	results := make([]outcome, len(roles))
	var wg sync.WaitGroup
	for i, role := range roles {
		wg.Add(1)
		go func(i int, role *VerifierRole) {
			defer wg.Done()
			verdict, err := role.Call(ctx, request)
			results[i] = outcome{role: role.Role(), verdict: verdict, err: err}
		}(i, role)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return VerificationRound{}, err
	}

	reports := make([]VerifierReport, 0, len(results))
	var passing []string
	for _, result := range results {
		verdict := result.verdict
		if result.err != nil {
			if isParseError(result.err) {
				verdict = VerifierVerdict{
					Verdict:     DecisionFail,
					Reasons:     []string{fmt.Sprintf("verifier %s returned invalid verdict JSON: %v", result.role, result.err)},
					Suggestions: []string{},
				}
			} else {
				return VerificationRound{}, fmt.Errorf("verifier %s: %w", result.role, result.err)
			}
		}
		if p.progress != nil {
			p.progress.VerifierVerdict(result.role, verdict)
		}
		if verdict.Verdict.IsPass() {
			passing = append(passing, result.role)
		}
		reports = append(reports, VerifierReport{
			Role:        result.role,
			Verdict:     verdict.Verdict,
			Reasons:     verdict.Reasons,
			Suggestions: verdict.Suggestions,
		})
	}

	return VerificationRound{
		Summary:      AggregateVerdicts(reports),
		PassingRoles: passing,
	}, nil
}

// ReplaceRole swaps the adapter for a role with a fresh one of identical
// configuration. The underlying session is untouched; only the adapter is
// recreated.
func (p *VerifierPool) ReplaceRole(roleName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, role := range p.roles {
		if role.Role() == roleName {
			p.roles[i] = NewVerifierRole(p.hub, p.runID, roleName, p.timeout, p.progress)
			return
		}
	}
}

// isParseError reports whether err is (or wraps) a reply parse failure.
func isParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
