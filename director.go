package infty

import (
	"context"
	"time"
)

// DirectorRole is the typed adapter for the director: it serializes a
// direction request into a turn, awaits one assistant reply, and parses it
// strictly against the director response schema.
type DirectorRole struct {
	hub      *CrossSessionHub
	runID    string
	role     string
	timeout  time.Duration
	progress ProgressReporter
}

// NewDirectorRole creates a director adapter bound to a hub and run.
func NewDirectorRole(hub *CrossSessionHub, runID, role string, timeout time.Duration, progress ProgressReporter) *DirectorRole {
	return &DirectorRole{
		hub:      hub,
		runID:    runID,
		role:     role,
		timeout:  timeout,
		progress: progress,
	}
}

// Call sends a direction request and returns the parsed directive.
func (d *DirectorRole) Call(ctx context.Context, req DirectionRequestPayload) (DirectiveResponse, error) {
	text, err := prettyJSON(req)
	if err != nil {
		return DirectiveResponse{}, err
	}

	handle, err := postTurn(d.hub, d.runID, d.role, text, DirectorResponseSchema())
	if err != nil {
		return DirectiveResponse{}, err
	}

	reply, err := awaitFirstIdle(ctx, d.hub, handle, d.timeout, d.progress, d.role)
	if err != nil {
		return DirectiveResponse{}, err
	}

	var response DirectiveResponse
	if err := parseJSONStruct(reply.Message, &response); err != nil {
		return DirectiveResponse{}, &ParseError{TypeName: "DirectiveResponse", Err: err}
	}
	if err := validateAgainst(directorResponseSchema, reply.Message); err != nil {
		return DirectiveResponse{}, &ParseError{TypeName: "DirectiveResponse", Err: err}
	}
	return response, nil
}

// Role returns the adapter's role name.
func (d *DirectorRole) Role() string {
	return d.role
}
