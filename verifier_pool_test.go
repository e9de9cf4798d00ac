package infty

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/everydev1618/infty/llm"
)

// newTestRunSessions spawns solver/director/verifier sessions over scripted
// backends under a temp run root. Scripts may be nil for roles a test never
// exercises.
func newTestRunSessions(t *testing.T, runID string, solver, director *llm.Script, verifiers map[string]*llm.Script) (*CrossSessionHub, *RunSessions) {
	t.Helper()

	hub := NewHub()
	runRoot := filepath.Join(t.TempDir(), runID)

	if solver == nil {
		solver = llm.NewScript()
	}
	if director == nil {
		director = llm.NewScript()
	}

	var roleConfigs []RoleConfig
	roleConfigs = append(roleConfigs,
		NewRoleConfig(RoleSolver, Config{Backend: solver}),
		NewRoleConfig(RoleDirector, Config{Backend: director}))

	verifierNames := make([]string, 0, len(verifiers))
	for i := 0; i < len(verifiers); i++ {
		name := VerifierRoleName(i)
		if _, ok := verifiers[name]; !ok {
			t.Fatalf("verifier scripts must use canonical names; missing %s", name)
		}
		verifierNames = append(verifierNames, name)
		roleConfigs = append(roleConfigs, NewRoleConfig(name, Config{Backend: verifiers[name]}))
	}

	store, err := CreateRunStore(runRoot, roleConfigs)
	if err != nil {
		t.Fatalf("CreateRunStore: %v", err)
	}

	sessions := &RunSessions{RunID: runID, Store: store}
	t.Cleanup(sessions.Close)

	sessions.Solver, err = SpawnRole(hub, runID, runRoot, roleConfigs[0], nil, nil)
	if err != nil {
		t.Fatalf("spawn solver: %v", err)
	}
	sessions.Director, err = SpawnRole(hub, runID, runRoot, roleConfigs[1], nil, nil)
	if err != nil {
		t.Fatalf("spawn director: %v", err)
	}
	for i, name := range verifierNames {
		session, err := SpawnRole(hub, runID, runRoot, roleConfigs[2+i], nil, nil)
		if err != nil {
			t.Fatalf("spawn %s: %v", name, err)
		}
		sessions.Verifiers = append(sessions.Verifiers, session)
	}

	return hub, sessions
}

const passVerdict = `{"verdict":"pass","reasons":[],"suggestions":[]}`

func TestCollectRoundAllPass(t *testing.T) {
	hub, sessions := newTestRunSessions(t, "run-pool", nil, nil, map[string]*llm.Script{
		"verifier-alpha": llm.NewScript(llm.Text(passVerdict)),
		"verifier-beta":  llm.NewScript(llm.Text(passVerdict)),
	})

	pool := NewVerifierPool(hub, sessions, time.Second, nil)
	if pool.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", pool.Len())
	}

	round, err := pool.CollectRound(context.Background(), NewVerificationRequestPayload("deliverable/a.txt", "", ""))
	if err != nil {
		t.Fatalf("CollectRound: %v", err)
	}

	if len(round.Summary.Verdicts) != 2 {
		t.Fatalf("len(Verdicts) = %d, want 2", len(round.Summary.Verdicts))
	}
	if round.Summary.Overall != DecisionPass {
		t.Errorf("Overall = %q, want pass", round.Summary.Overall)
	}
	if len(round.PassingRoles) != 2 {
		t.Errorf("PassingRoles = %v", round.PassingRoles)
	}
	// Summary preserves configured verifier order.
	if round.Summary.Verdicts[0].Role != "verifier-alpha" || round.Summary.Verdicts[1].Role != "verifier-beta" {
		t.Errorf("verdict order = %s, %s", round.Summary.Verdicts[0].Role, round.Summary.Verdicts[1].Role)
	}
}

func TestCollectRoundMixedVerdicts(t *testing.T) {
	failVerdict := `{"verdict":"fail","reasons":["summary is empty"],"suggestions":["write the summary"]}`
	hub, sessions := newTestRunSessions(t, "run-pool", nil, nil, map[string]*llm.Script{
		"verifier-alpha": llm.NewScript(llm.Text(passVerdict)),
		"verifier-beta":  llm.NewScript(llm.Text(failVerdict)),
	})

	pool := NewVerifierPool(hub, sessions, time.Second, nil)
	round, err := pool.CollectRound(context.Background(), NewVerificationRequestPayload("deliverable/a.txt", "", ""))
	if err != nil {
		t.Fatalf("CollectRound: %v", err)
	}

	if round.Summary.Overall != DecisionFail {
		t.Errorf("Overall = %q, want fail", round.Summary.Overall)
	}
	if len(round.PassingRoles) != 1 || round.PassingRoles[0] != "verifier-alpha" {
		t.Errorf("PassingRoles = %v", round.PassingRoles)
	}

	var beta *VerifierReport
	for i := range round.Summary.Verdicts {
		if round.Summary.Verdicts[i].Role == "verifier-beta" {
			beta = &round.Summary.Verdicts[i]
		}
	}
	if beta == nil || len(beta.Reasons) != 1 || beta.Reasons[0] != "summary is empty" {
		t.Errorf("beta report = %+v", beta)
	}
}

func TestCollectRoundParseFailureBecomesFailVerdict(t *testing.T) {
	hub, sessions := newTestRunSessions(t, "run-pool", nil, nil, map[string]*llm.Script{
		"verifier-alpha": llm.NewScript(llm.Text(passVerdict)),
		"verifier-beta":  llm.NewScript(llm.Text("i cannot decide")),
	})

	pool := NewVerifierPool(hub, sessions, time.Second, nil)
	round, err := pool.CollectRound(context.Background(), NewVerificationRequestPayload("deliverable/a.txt", "", ""))
	if err != nil {
		t.Fatalf("CollectRound: %v", err)
	}

	if round.Summary.Overall != DecisionFail {
		t.Errorf("Overall = %q, want fail", round.Summary.Overall)
	}
	if len(round.Summary.Verdicts) != 2 {
		t.Fatalf("len(Verdicts) = %d, want 2", len(round.Summary.Verdicts))
	}

	var beta VerifierReport
	for _, report := range round.Summary.Verdicts {
		if report.Role == "verifier-beta" {
			beta = report
		}
	}
	if beta.Verdict != DecisionFail {
		t.Errorf("beta verdict = %q, want fail", beta.Verdict)
	}
	if len(beta.Reasons) == 0 || !strings.Contains(beta.Reasons[0], "invalid verdict JSON") {
		t.Errorf("beta reasons = %v, want parse context", beta.Reasons)
	}
}

func TestCollectRoundSchemaViolationBecomesFailVerdict(t *testing.T) {
	// Valid JSON, but "maybe" is outside the verdict enum.
	hub, sessions := newTestRunSessions(t, "run-pool", nil, nil, map[string]*llm.Script{
		"verifier-alpha": llm.NewScript(llm.Text(`{"verdict":"maybe","reasons":[],"suggestions":[]}`)),
	})

	pool := NewVerifierPool(hub, sessions, time.Second, nil)
	round, err := pool.CollectRound(context.Background(), NewVerificationRequestPayload("deliverable/a.txt", "", ""))
	if err != nil {
		t.Fatalf("CollectRound: %v", err)
	}
	if round.Summary.Overall != DecisionFail {
		t.Errorf("Overall = %q, want fail", round.Summary.Overall)
	}
}

func TestCollectRoundTimeoutIsFatal(t *testing.T) {
	hub, sessions := newTestRunSessions(t, "run-pool", nil, nil, map[string]*llm.Script{
		"verifier-alpha": llm.NewScript(llm.Silent()),
	})

	pool := NewVerifierPool(hub, sessions, 50*time.Millisecond, nil)
	_, err := pool.CollectRound(context.Background(), NewVerificationRequestPayload("deliverable/a.txt", "", ""))
	var timeoutErr *AwaitTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want AwaitTimeoutError", err)
	}
}

func TestReplaceRole(t *testing.T) {
	hub, sessions := newTestRunSessions(t, "run-pool", nil, nil, map[string]*llm.Script{
		"verifier-alpha": llm.NewScript(llm.Text("garbage"), llm.Text(passVerdict)),
	})

	pool := NewVerifierPool(hub, sessions, time.Second, nil)

	round, err := pool.CollectRound(context.Background(), NewVerificationRequestPayload("deliverable/a.txt", "", ""))
	if err != nil {
		t.Fatalf("CollectRound: %v", err)
	}
	if round.Summary.Overall != DecisionFail {
		t.Fatalf("round 1 overall = %q, want fail", round.Summary.Overall)
	}

	pool.ReplaceRole("verifier-alpha")
	pool.ReplaceRole("verifier-unknown") // no-op
	if pool.Len() != 1 {
		t.Fatalf("Len() = %d after replace, want 1", pool.Len())
	}

	// The refreshed adapter talks to the same session; the script's next
	// reply passes.
	round, err = pool.CollectRound(context.Background(), NewVerificationRequestPayload("deliverable/a.txt", "", ""))
	if err != nil {
		t.Fatalf("CollectRound: %v", err)
	}
	if round.Summary.Overall != DecisionPass {
		t.Errorf("round 2 overall = %q, want pass", round.Summary.Overall)
	}
}

func TestEmptyPoolIsEmpty(t *testing.T) {
	hub, sessions := newTestRunSessions(t, "run-pool", nil, nil, nil)
	pool := NewVerifierPool(hub, sessions, time.Second, nil)
	if !pool.IsEmpty() {
		t.Error("IsEmpty() = false for empty pool")
	}
}
