package infty

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RoleOrID addresses a conversation either by (run, role) or directly by
// conversation id.
type RoleOrID struct {
	RunID          string
	Role           string
	ConversationID string
}

// RunRole addresses a conversation by run id and role name.
func RunRole(runID, role string) RoleOrID {
	return RoleOrID{RunID: runID, Role: role}
}

// ByConversation addresses a conversation directly.
func ByConversation(id string) RoleOrID {
	return RoleOrID{ConversationID: id}
}

// PostUserTurnRequest is a user-authored turn for a role conversation.
type PostUserTurnRequest struct {
	Target RoleOrID
	Text   string

	// FinalOutputJSONSchema, when non-nil, constrains the model to emit
	// strict JSON conforming to it for this turn's reply.
	FinalOutputJSONSchema map[string]any
}

// TurnHandle identifies a posted turn. Events belonging to the turn carry
// its submission id.
type TurnHandle struct {
	conversationID string
	submissionID   string
}

// ConversationID returns the conversation the turn was posted to.
func (h *TurnHandle) ConversationID() string {
	return h.conversationID
}

// SubmissionID returns the id filtering this turn's events.
func (h *TurnHandle) SubmissionID() string {
	return h.submissionID
}

// runRoleKey is the registry key for (run, role) addressing.
type runRoleKey struct {
	runID string
	role  string
}

// CrossSessionHub routes user-authored turns into named role conversations
// and exposes per-conversation event streams. Mutations are serialized by a
// short-lived lock; lookups copy the entry out under the read lock.
type CrossSessionHub struct {
	mu     sync.RWMutex
	byRole map[runRoleKey]*Conversation
	byID   map[string]*Conversation
}

// NewHub creates an empty hub.
func NewHub() *CrossSessionHub {
	return &CrossSessionHub{
		byRole: make(map[runRoleKey]*Conversation),
		byID:   make(map[string]*Conversation),
	}
}

// Register adds a conversation under (run, role). Role names are unique
// within a run.
func (h *CrossSessionHub) Register(runID, role string, c *Conversation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := runRoleKey{runID: runID, role: role}
	if _, exists := h.byRole[key]; exists {
		return fmt.Errorf("%w: %s/%s", ErrRoleExists, runID, role)
	}
	h.byRole[key] = c
	h.byID[c.ID()] = c
	return nil
}

// Deregister removes a conversation from both indices.
func (h *CrossSessionHub) Deregister(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.byID[conversationID]
	if !ok {
		return
	}
	delete(h.byID, conversationID)
	delete(h.byRole, runRoleKey{runID: c.runID, role: c.role})
}

// Resolve looks up a conversation by target.
func (h *CrossSessionHub) Resolve(target RoleOrID) (*Conversation, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if target.ConversationID != "" {
		if c, ok := h.byID[target.ConversationID]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("%w: conversation %s", ErrUnknownTarget, target.ConversationID)
	}
	if c, ok := h.byRole[runRoleKey{runID: target.RunID, role: target.Role}]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownTarget, target.RunID, target.Role)
}

// PostUserTurn posts a user-authored turn to the target conversation and
// returns a handle carrying the fresh submission id.
func (h *CrossSessionHub) PostUserTurn(req PostUserTurnRequest) (*TurnHandle, error) {
	c, err := h.Resolve(req.Target)
	if err != nil {
		return nil, err
	}

	submissionID, err := c.post(req.Text, req.FinalOutputJSONSchema)
	if err != nil {
		return nil, err
	}
	return &TurnHandle{conversationID: c.ID(), submissionID: submissionID}, nil
}

// StreamEvents subscribes to a conversation's event stream. The stream ends
// when the conversation closes; cancel must be called when the caller stops
// reading.
func (h *CrossSessionHub) StreamEvents(conversationID string) (<-chan Event, func(), error) {
	c, err := h.Resolve(ByConversation(conversationID))
	if err != nil {
		return nil, nil, err
	}
	return c.subscribe()
}

// AwaitFirstAssistant blocks until the first assistant message on the turn,
// the timeout, conversation close, or context cancellation.
func (h *CrossSessionHub) AwaitFirstAssistant(ctx context.Context, handle *TurnHandle, timeout time.Duration) (AssistantMessage, error) {
	c, err := h.Resolve(ByConversation(handle.ConversationID()))
	if err != nil {
		return AssistantMessage{}, err
	}

	waiter := c.firstAssistant(handle.SubmissionID())
	if waiter == nil {
		return AssistantMessage{}, fmt.Errorf("%w: turn %s", ErrUnknownTarget, handle.SubmissionID())
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-waiter:
		c.releaseTurn(handle.SubmissionID())
		return result.msg, result.err
	case <-c.Done():
		return AssistantMessage{}, ErrSessionClosed
	case <-timer.C:
		return AssistantMessage{}, &AwaitTimeoutError{Timeout: timeout}
	case <-ctx.Done():
		return AssistantMessage{}, ctx.Err()
	}
}
