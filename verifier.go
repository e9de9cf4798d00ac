package infty

import (
	"context"
	"time"
)

// VerifierRole is the typed adapter for a single verifier.
type VerifierRole struct {
	hub      *CrossSessionHub
	runID    string
	role     string
	timeout  time.Duration
	progress ProgressReporter
}

// NewVerifierRole creates a verifier adapter bound to a hub and run.
func NewVerifierRole(hub *CrossSessionHub, runID, role string, timeout time.Duration, progress ProgressReporter) *VerifierRole {
	return &VerifierRole{
		hub:      hub,
		runID:    runID,
		role:     role,
		timeout:  timeout,
		progress: progress,
	}
}

// Role returns the adapter's role name.
func (v *VerifierRole) Role() string {
	return v.role
}

// Call sends a verification request and returns the parsed verdict.
func (v *VerifierRole) Call(ctx context.Context, req VerificationRequestPayload) (VerifierVerdict, error) {
	text, err := prettyJSON(req)
	if err != nil {
		return VerifierVerdict{}, err
	}

	handle, err := postTurn(v.hub, v.runID, v.role, text, VerifierResponseSchema())
	if err != nil {
		return VerifierVerdict{}, err
	}

	reply, err := awaitFirstIdle(ctx, v.hub, handle, v.timeout, v.progress, v.role)
	if err != nil {
		return VerifierVerdict{}, err
	}

	var verdict VerifierVerdict
	if err := parseJSONStruct(reply.Message, &verdict); err != nil {
		return VerifierVerdict{}, &ParseError{TypeName: "VerifierVerdict", Err: err}
	}
	if err := validateAgainst(verifierResponseSchema, reply.Message); err != nil {
		return VerifierVerdict{}, &ParseError{TypeName: "VerifierVerdict", Err: err}
	}
	if verdict.Reasons == nil {
		verdict.Reasons = []string{}
	}
	if verdict.Suggestions == nil {
		verdict.Suggestions = []string{}
	}
	return verdict, nil
}
