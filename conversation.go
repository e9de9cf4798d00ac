package infty

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/everydev1618/infty/llm"
)

// EventKind identifies the kind of conversation event.
type EventKind string

const (
	EventTaskStarted       EventKind = "task_started"
	EventAgentMessageDelta EventKind = "agent_message_delta"
	EventAgentMessage      EventKind = "agent_message"
	EventTaskComplete      EventKind = "task_complete"
	EventError             EventKind = "error"
)

// EventMsg is the payload of a conversation event.
type EventMsg struct {
	Kind EventKind `json:"kind"`
	// Text carries the delta or complete message for message events
	Text string `json:"text,omitempty"`
	// Error carries the failure description for error events
	Error string `json:"error,omitempty"`
}

// Event is a conversation event tagged with the submission it belongs to.
type Event struct {
	// ID is the submission id of the turn that produced this event
	ID  string   `json:"id"`
	Msg EventMsg `json:"msg"`
}

// AssistantMessage is the first complete assistant reply on a turn.
type AssistantMessage struct {
	// Role is the conversation's role name
	Role string
	// Message is the assistant's reply text
	Message string
}

// turnResult is delivered to first-assistant waiters: either the first
// assistant message or the turn's terminal error.
type turnResult struct {
	msg AssistantMessage
	err error
}

// submission is one queued user turn.
type submission struct {
	id     string
	text   string
	schema map[string]any
}

// Conversation is a single long-lived model conversation bound to a role.
// A worker goroutine consumes queued submissions one turn at a time,
// publishing events tagged with the submission id to every subscriber and
// appending them to the rollout log.
type Conversation struct {
	id      string
	runID   string
	role    string
	config  Config
	backend llm.LLM
	logger  *slog.Logger

	submissions chan submission
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}

	mu          sync.Mutex
	history     []llm.Message
	subscribers map[int]chan Event
	nextSubID   int
	waiters     map[string]chan turnResult
	closed      bool

	rollout *rolloutWriter
}

// newConversation creates and starts a conversation worker. rolloutPath may
// be empty to disable the rollout log.
func newConversation(runID, role string, config Config, backend llm.LLM, rolloutPath string, logger *slog.Logger) (*Conversation, error) {
	if backend == nil {
		return nil, fmt.Errorf("role %s: no LLM backend configured", role)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var rollout *rolloutWriter
	if rolloutPath != "" {
		var err error
		rollout, err = newRolloutWriter(rolloutPath)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conversation{
		id:          uuid.New().String(),
		runID:       runID,
		role:        role,
		config:      config,
		backend:     backend,
		logger:      logger.With("role", role),
		submissions: make(chan submission, 64),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		subscribers: make(map[int]chan Event),
		waiters:     make(map[string]chan turnResult),
		rollout:     rollout,
	}

	go c.run()
	return c, nil
}

// ID returns the globally unique conversation id.
func (c *Conversation) ID() string {
	return c.id
}

// Role returns the role name this conversation is bound to.
func (c *Conversation) Role() string {
	return c.role
}

// Done is closed when the conversation worker has exited.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

// Close terminates the conversation. Queued turns are abandoned and all
// subscriber streams end.
func (c *Conversation) Close() {
	c.cancel()
	<-c.done
}

// post enqueues a user turn and returns its submission id.
func (c *Conversation) post(text string, schema map[string]any) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrSessionClosed
	}
	id := uuid.New().String()
	c.waiters[id] = make(chan turnResult, 1)
	c.mu.Unlock()

	select {
	case c.submissions <- submission{id: id, text: text, schema: schema}:
		return id, nil
	case <-c.ctx.Done():
		return "", ErrSessionClosed
	}
}

// subscribe registers an event stream. The returned cancel function must be
// called when the caller stops reading.
func (c *Conversation) subscribe() (<-chan Event, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrSessionClosed
	}

	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Event, 256)
	c.subscribers[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// firstAssistant returns the channel delivering the first assistant message
// (or terminal turn error) for a submission, or nil if the submission is
// unknown.
func (c *Conversation) firstAssistant(submissionID string) <-chan turnResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters[submissionID]
}

// releaseTurn drops a consumed turn's waiter entry.
func (c *Conversation) releaseTurn(submissionID string) {
	c.mu.Lock()
	delete(c.waiters, submissionID)
	c.mu.Unlock()
}

// resolveTurn delivers a turn's result to its waiter, once.
func (c *Conversation) resolveTurn(submissionID string, result turnResult) {
	c.mu.Lock()
	waiter := c.waiters[submissionID]
	c.mu.Unlock()
	if waiter == nil {
		return
	}
	select {
	case waiter <- result:
	default:
	}
}

// run is the conversation worker loop.
func (c *Conversation) run() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		for id, sub := range c.subscribers {
			delete(c.subscribers, id)
			close(sub)
		}
		c.mu.Unlock()
		if c.rollout != nil {
			c.rollout.Close()
		}
		close(c.done)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case sub := <-c.submissions:
			c.runTurn(sub)
		}
	}
}

// runTurn executes one submission against the backend.
func (c *Conversation) runTurn(sub submission) {
	c.mu.Lock()
	c.history = append(c.history, llm.Message{Role: llm.RoleUser, Content: sub.text})
	messages := make([]llm.Message, len(c.history))
	copy(messages, c.history)
	c.mu.Unlock()

	c.publish(Event{ID: sub.id, Msg: EventMsg{Kind: EventTaskStarted}})

	events, err := c.backend.GenerateStream(c.ctx, llm.Request{
		Model:           c.config.Model,
		System:          c.config.BaseInstructions,
		Messages:        messages,
		OutputSchema:    sub.schema,
		ReasoningEffort: c.config.ReasoningEffort,
		MaxOutputTokens: c.config.MaxOutputTokens,
	})
	if err != nil {
		c.logger.Error("backend request failed", "error", err)
		c.publish(Event{ID: sub.id, Msg: EventMsg{Kind: EventError, Error: err.Error()}})
		c.resolveTurn(sub.id, turnResult{err: &RoleError{Role: c.role, Message: err.Error()}})
		return
	}

	var reply string
	for event := range events {
		switch event.Type {
		case llm.StreamEventContentDelta:
			reply += event.Delta
			c.publish(Event{ID: sub.id, Msg: EventMsg{Kind: EventAgentMessageDelta, Text: event.Delta}})
		case llm.StreamEventError:
			c.logger.Error("stream error", "error", event.Error)
			c.publish(Event{ID: sub.id, Msg: EventMsg{Kind: EventError, Error: event.Error.Error()}})
			c.resolveTurn(sub.id, turnResult{err: &RoleError{Role: c.role, Message: event.Error.Error()}})
			return
		}
	}

	if reply != "" {
		c.mu.Lock()
		c.history = append(c.history, llm.Message{Role: llm.RoleAssistant, Content: reply})
		c.mu.Unlock()

		c.publish(Event{ID: sub.id, Msg: EventMsg{Kind: EventAgentMessage, Text: reply}})
		c.resolveTurn(sub.id, turnResult{msg: AssistantMessage{Role: c.role, Message: reply}})
	}
	c.publish(Event{ID: sub.id, Msg: EventMsg{Kind: EventTaskComplete}})
}

// publish fans an event out to subscribers and the rollout log. Slow
// subscribers drop events rather than stalling the worker.
func (c *Conversation) publish(event Event) {
	if c.rollout != nil {
		c.rollout.Append(event)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// rolloutWriter appends conversation events to a JSON-lines log.
type rolloutWriter struct {
	mu   sync.Mutex
	file *os.File
}

// rolloutLine is one record of the rollout log.
type rolloutLine struct {
	Timestamp time.Time `json:"ts"`
	Event     Event     `json:"event"`
}

func newRolloutWriter(path string) (*rolloutWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open rollout log: %w", err)
	}
	return &rolloutWriter{file: file}, nil
}

// Append writes one event record. Rollout failures are not fatal to the
// conversation.
func (w *rolloutWriter) Append(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(rolloutLine{Timestamp: time.Now().UTC(), Event: event})
	if err != nil {
		return
	}
	w.file.Write(append(data, '\n'))
}

// Close flushes and closes the log file.
func (w *rolloutWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.file.Close()
}
