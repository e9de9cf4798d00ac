package infty

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/everydev1618/infty/llm"
)

func TestDirectorCall(t *testing.T) {
	director := llm.NewScript(llm.Text(`{"directive":"split the work","rationale":"smaller steps verify faster"}`))
	hub, sessions := newTestRunSessions(t, "run-dir", nil, director, nil)

	adapter := NewDirectorRole(hub, sessions.RunID, RoleDirector, time.Second, nil)
	response, err := adapter.Call(context.Background(), NewDirectionRequestPayload("how should I proceed?", "ship"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if response.Directive != "split the work" {
		t.Errorf("Directive = %q", response.Directive)
	}
	if response.Rationale == nil || *response.Rationale != "smaller steps verify faster" {
		t.Errorf("Rationale = %v", response.Rationale)
	}

	// The turn carried the strict response schema.
	calls := director.Calls()
	if len(calls) != 1 {
		t.Fatalf("director saw %d calls", len(calls))
	}
	if calls[0].OutputSchema == nil {
		t.Error("direction request posted without response schema")
	}
}

func TestDirectorCallCodeFencedReply(t *testing.T) {
	director := llm.NewScript(llm.Text("```json\n{\"directive\":\"go\",\"rationale\":null}\n```"))
	hub, sessions := newTestRunSessions(t, "run-dir", nil, director, nil)

	adapter := NewDirectorRole(hub, sessions.RunID, RoleDirector, time.Second, nil)
	response, err := adapter.Call(context.Background(), NewDirectionRequestPayload("ready?", ""))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if response.Directive != "go" {
		t.Errorf("Directive = %q, want %q", response.Directive, "go")
	}
	if response.Rationale != nil {
		t.Errorf("Rationale = %v, want nil", response.Rationale)
	}
}

func TestDirectorCallParseErrorIsFatal(t *testing.T) {
	director := llm.NewScript(llm.Text("let me think about that"))
	hub, sessions := newTestRunSessions(t, "run-dir", nil, director, nil)

	adapter := NewDirectorRole(hub, sessions.RunID, RoleDirector, time.Second, nil)
	_, err := adapter.Call(context.Background(), NewDirectionRequestPayload("ready?", ""))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want ParseError", err)
	}
	if parseErr.TypeName != "DirectiveResponse" {
		t.Errorf("TypeName = %q", parseErr.TypeName)
	}
}

func TestDirectorCallSchemaViolation(t *testing.T) {
	// Parses as JSON but carries an undeclared property.
	director := llm.NewScript(llm.Text(`{"directive":"go","rationale":null,"mood":"upbeat"}`))
	hub, sessions := newTestRunSessions(t, "run-dir", nil, director, nil)

	adapter := NewDirectorRole(hub, sessions.RunID, RoleDirector, time.Second, nil)
	_, err := adapter.Call(context.Background(), NewDirectionRequestPayload("ready?", ""))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("error = %v, want ParseError", err)
	}
}

func TestDirectorCallTimeout(t *testing.T) {
	director := llm.NewScript(llm.Silent())
	hub, sessions := newTestRunSessions(t, "run-dir", nil, director, nil)

	adapter := NewDirectorRole(hub, sessions.RunID, RoleDirector, 50*time.Millisecond, nil)
	_, err := adapter.Call(context.Background(), NewDirectionRequestPayload("ready?", ""))
	var timeoutErr *AwaitTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want AwaitTimeoutError", err)
	}
}

func TestVerifierCallNormalizesNilSlices(t *testing.T) {
	verifier := llm.NewScript(llm.Text(`{"verdict":"pass","reasons":[],"suggestions":[]}`))
	hub, sessions := newTestRunSessions(t, "run-ver", nil, nil, map[string]*llm.Script{
		"verifier-alpha": verifier,
	})

	adapter := NewVerifierRole(hub, sessions.RunID, "verifier-alpha", time.Second, nil)
	verdict, err := adapter.Call(context.Background(), NewVerificationRequestPayload("deliverable/a.txt", "", ""))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if verdict.Verdict != DecisionPass {
		t.Errorf("Verdict = %q", verdict.Verdict)
	}
	if verdict.Reasons == nil || verdict.Suggestions == nil {
		t.Error("reasons/suggestions should be non-nil after Call")
	}

	calls := verifier.Calls()
	if len(calls) != 1 || calls[0].OutputSchema == nil {
		t.Error("verification request posted without response schema")
	}
}
