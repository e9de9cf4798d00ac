package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func collect(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var all []StreamEvent
	for event := range events {
		all = append(all, event)
	}
	return all
}

func TestScriptPlaysRepliesInOrder(t *testing.T) {
	script := NewScript(Text("one"), Text("two"))

	for _, want := range []string{"one", "two"} {
		events, err := script.GenerateStream(context.Background(), Request{})
		if err != nil {
			t.Fatal(err)
		}
		all := collect(t, events)
		if len(all) != 3 {
			t.Fatalf("events = %d, want 3", len(all))
		}
		if all[1].Type != StreamEventContentDelta || all[1].Delta != want {
			t.Errorf("delta = %+v, want %q", all[1], want)
		}
		if all[2].Type != StreamEventMessageEnd {
			t.Errorf("terminal event = %+v", all[2])
		}
	}
}

func TestScriptSilentReply(t *testing.T) {
	script := NewScript(Silent())

	events, err := script.GenerateStream(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	for _, event := range collect(t, events) {
		if event.Type == StreamEventContentDelta {
			t.Error("silent reply produced a delta")
		}
	}
}

func TestScriptErrorReply(t *testing.T) {
	boom := errors.New("boom")
	script := NewScript(Reply{Err: boom})

	events, err := script.GenerateStream(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	all := collect(t, events)
	last := all[len(all)-1]
	if last.Type != StreamEventError || !errors.Is(last.Error, boom) {
		t.Errorf("terminal event = %+v, want error", last)
	}
}

func TestScriptHangRespectsContext(t *testing.T) {
	script := NewScript(Reply{Hang: true})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := script.GenerateStream(ctx, Request{})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	all := collect(t, events)
	if len(all) == 0 || all[len(all)-1].Type != StreamEventError {
		t.Errorf("events = %+v, want terminal error after cancel", all)
	}
}

func TestScriptRecordsCalls(t *testing.T) {
	script := NewScript(Text("ok"))

	events, err := script.GenerateStream(context.Background(), Request{
		Model:    "model-x",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	collect(t, events)

	calls := script.Calls()
	if len(calls) != 1 || calls[0].Model != "model-x" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestParseReasoningEffort(t *testing.T) {
	for _, valid := range []string{"minimal", "low", "medium", "high"} {
		if _, ok := ParseReasoningEffort(valid); !ok {
			t.Errorf("ParseReasoningEffort(%q) not ok", valid)
		}
	}
	if _, ok := ParseReasoningEffort("extreme"); ok {
		t.Error("ParseReasoningEffort(extreme) ok")
	}
}
