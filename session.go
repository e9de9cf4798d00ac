package infty

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/everydev1618/infty/llm"
)

// RoleSession is a live conversation bound to a role under a run directory.
type RoleSession struct {
	// Role is the role name
	Role string

	// ConversationID is the globally unique conversation id
	ConversationID string

	// Conversation is the owning reference to the conversation
	Conversation *Conversation

	// RolloutPath is the append-only event log for this session
	RolloutPath string

	// Config is the final effective configuration the session was
	// spawned with
	Config Config
}

// Close terminates the session's conversation.
func (s *RoleSession) Close() {
	s.Conversation.Close()
}

// SpawnRole starts a role conversation under the run directory and registers
// it in the hub. The role's cwd is forced to the run root, missing base
// instructions default to the role's built-in prompt, and sandbox/approval
// policies are forced to full-access/never.
func SpawnRole(hub *CrossSessionHub, runID, runPath string, roleConfig RoleConfig, defaultBackend llm.LLM, logger *slog.Logger) (*RoleSession, error) {
	role := roleConfig.Role
	config := roleConfig.Config
	config.CWD = runPath
	config.SandboxPolicy = SandboxFullAccess
	config.ApprovalPolicy = ApprovalNever
	ensureInstructions(role, &config)

	backend := config.Backend
	if backend == nil {
		backend = defaultBackend
	}

	rolloutPath := filepath.Join(runPath, "sessions", role+".jsonl")
	conversation, err := newConversation(runID, role, config, backend, rolloutPath, logger)
	if err != nil {
		return nil, fmt.Errorf("spawn role %s: %w", role, err)
	}

	if err := hub.Register(runID, role, conversation); err != nil {
		conversation.Close()
		return nil, fmt.Errorf("spawn role %s: %w", role, err)
	}

	return &RoleSession{
		Role:           role,
		ConversationID: conversation.ID(),
		Conversation:   conversation,
		RolloutPath:    rolloutPath,
		Config:         config,
	}, nil
}

// postTurn posts a user turn to a (run, role) target.
func postTurn(hub *CrossSessionHub, runID, role, text string, schema map[string]any) (*TurnHandle, error) {
	return hub.PostUserTurn(PostUserTurnRequest{
		Target:                RunRole(runID, role),
		Text:                  text,
		FinalOutputJSONSchema: schema,
	})
}

// awaitFirstIdle waits for the first assistant message on a turn, resetting
// the idle deadline whenever an event arrives for the turn's submission.
// Events on other submissions are ignored. An error event on the matching
// submission short-circuits the wait.
func awaitFirstIdle(ctx context.Context, hub *CrossSessionHub, handle *TurnHandle, idleTimeout time.Duration, progress ProgressReporter, role string) (AssistantMessage, error) {
	events, cancel, err := hub.StreamEvents(handle.ConversationID())
	if err != nil {
		return AssistantMessage{}, err
	}
	defer cancel()

	conversation, err := hub.Resolve(ByConversation(handle.ConversationID()))
	if err != nil {
		return AssistantMessage{}, err
	}
	waiter := conversation.firstAssistant(handle.SubmissionID())
	if waiter == nil {
		return AssistantMessage{}, fmt.Errorf("%w: turn %s", ErrUnknownTarget, handle.SubmissionID())
	}

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case result := <-waiter:
			conversation.releaseTurn(handle.SubmissionID())
			return result.msg, result.err

		case event, ok := <-events:
			if !ok {
				return AssistantMessage{}, ErrSessionClosed
			}
			if event.ID != handle.SubmissionID() {
				continue
			}
			if progress != nil {
				progress.RoleEvent(role, event.Msg)
			}
			if event.Msg.Kind == EventError {
				return AssistantMessage{}, &RoleError{Role: role, Message: event.Msg.Error}
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleTimeout)

		case <-idle.C:
			return AssistantMessage{}, &AwaitTimeoutError{Timeout: idleTimeout}

		case <-ctx.Done():
			return AssistantMessage{}, ctx.Err()
		}
	}
}
