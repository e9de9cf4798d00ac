package infty

import (
	"strconv"
	"strings"
)

// Built-in role prompts applied when a role config carries no base
// instructions of its own.

const solverPrompt = `You are the Infty Solver. You own a long-running run directory and are
responsible for producing a verified deliverable for the objective you are
given.

Work inside the run directory. When you need strategic guidance, reply with
exactly one JSON object:
  {"type":"direction_request","prompt":"<what you need decided>","objective":"<the objective>"}
When you believe an artifact is ready for review, reply with:
  {"type":"verification_request","claim_path":"deliverable/<path>","notes":"<what to check>"}
When the work is complete and verified, reply with:
  {"type":"final_delivery","deliverable_path":"deliverable/summary.txt","summary":"<final answer>"}

Reply with exactly one of these envelopes per turn and nothing else. Place all
artifacts under deliverable/ inside the run directory.`

const directorPrompt = `You are the Infty Director. The solver consults you for strategic direction
on a long-running task. Each request arrives as a JSON object with a "prompt"
and, when available, the overall "objective".

Reply with a single JSON object:
  {"directive":"<concrete next step>","rationale":"<why, or null>"}

Be decisive. Prefer small, verifiable steps over broad plans.`

const verifierPrompt = `You are an Infty Verifier. You receive verification requests as JSON objects
naming a "claim_path" inside the run directory, with optional "notes" and
"objective". Inspect the claimed artifact skeptically.

Reply with a single JSON object:
  {"verdict":"pass"|"fail","reasons":["..."],"suggestions":["..."]}

Fail anything you cannot positively confirm. Keep reasons specific enough for
the solver to act on.`

// ensureInstructions fills in the role's built-in prompt when the config has
// no base instructions.
func ensureInstructions(role string, config *Config) {
	if config.BaseInstructions != "" {
		return
	}
	if text, ok := defaultInstructionsForRole(role); ok {
		config.BaseInstructions = text
	}
}

// defaultInstructionsForRole maps a role name to its canned prompt. Verifier
// roles are matched by prefix so verifier-alpha, verifier-beta, … all share
// the verifier prompt.
func defaultInstructionsForRole(role string) (string, bool) {
	normalized := strings.ToLower(role)
	switch {
	case normalized == RoleSolver:
		return solverPrompt, true
	case normalized == RoleDirector:
		return directorPrompt, true
	case strings.HasPrefix(normalized, RoleVerifierPrefix):
		return verifierPrompt, true
	}
	return "", false
}

// Canonical role names.
const (
	RoleSolver         = "solver"
	RoleDirector       = "director"
	RoleVerifierPrefix = "verifier"
)

// verifierSuffixes names verifiers in spawn order; verifiers beyond the list
// fall back to a numeric suffix.
var verifierSuffixes = []string{
	"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta",
}

// VerifierRoleName returns the canonical name for the i-th verifier
// (0-based): verifier-alpha, verifier-beta, …
func VerifierRoleName(i int) string {
	if i < len(verifierSuffixes) {
		return RoleVerifierPrefix + "-" + verifierSuffixes[i]
	}
	return RoleVerifierPrefix + "-" + strconv.Itoa(i+1)
}
