package infty

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/everydev1618/infty/llm"
)

func TestConversationKeepsHistoryAcrossTurns(t *testing.T) {
	script := llm.NewScript(llm.Text("first reply"), llm.Text("second reply"))
	hub, _ := newTestConversation(t, "run-1", "solver", script)

	for _, turn := range []string{"turn one", "turn two"} {
		handle, err := hub.PostUserTurn(PostUserTurnRequest{Target: RunRole("run-1", "solver"), Text: turn})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := hub.AwaitFirstAssistant(context.Background(), handle, time.Second); err != nil {
			t.Fatal(err)
		}
	}

	calls := script.Calls()
	if len(calls) != 2 {
		t.Fatalf("backend saw %d calls, want 2", len(calls))
	}

	// The second call carries the full history: user, assistant, user.
	second := calls[1].Messages
	if len(second) != 3 {
		t.Fatalf("second call history length = %d, want 3", len(second))
	}
	if second[0].Content != "turn one" || second[0].Role != llm.RoleUser {
		t.Errorf("history[0] = %+v", second[0])
	}
	if second[1].Content != "first reply" || second[1].Role != llm.RoleAssistant {
		t.Errorf("history[1] = %+v", second[1])
	}
	if second[2].Content != "turn two" {
		t.Errorf("history[2] = %+v", second[2])
	}
}

func TestConversationRolloutLog(t *testing.T) {
	rolloutPath := filepath.Join(t.TempDir(), "solver.jsonl")
	script := llm.NewScript(llm.Text("logged reply"))

	conversation, err := newConversation("run-1", "solver", Config{}, script, rolloutPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	hub := NewHub()
	if err := hub.Register("run-1", "solver", conversation); err != nil {
		t.Fatal(err)
	}

	handle, err := hub.PostUserTurn(PostUserTurnRequest{Target: RunRole("run-1", "solver"), Text: "log me"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := hub.AwaitFirstAssistant(context.Background(), handle, time.Second); err != nil {
		t.Fatal(err)
	}
	conversation.Close()

	file, err := os.Open(rolloutPath)
	if err != nil {
		t.Fatalf("rollout log missing: %v", err)
	}
	defer file.Close()

	var kinds []EventKind
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line struct {
			Event Event `json:"event"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("bad rollout line %q: %v", scanner.Text(), err)
		}
		if line.Event.ID != handle.SubmissionID() {
			t.Errorf("rollout event id = %q, want %q", line.Event.ID, handle.SubmissionID())
		}
		kinds = append(kinds, line.Event.Msg.Kind)
	}

	want := []EventKind{EventTaskStarted, EventAgentMessageDelta, EventAgentMessage, EventTaskComplete}
	if len(kinds) != len(want) {
		t.Fatalf("rollout kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("rollout kinds[%d] = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestPostAfterCloseFails(t *testing.T) {
	script := llm.NewScript()
	conversation, err := newConversation("run-1", "solver", Config{}, script, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	conversation.Close()

	if _, err := conversation.post("too late", nil); err != ErrSessionClosed {
		t.Errorf("post after close = %v, want ErrSessionClosed", err)
	}
}

func TestConversationRequiresBackend(t *testing.T) {
	if _, err := newConversation("run-1", "solver", Config{}, nil, "", nil); err == nil {
		t.Error("expected error for nil backend")
	}
}
