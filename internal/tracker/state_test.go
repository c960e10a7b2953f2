package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/copilot-dashboard/backend/internal/config"
	"github.com/copilot-dashboard/backend/internal/events"
)

// newTestTracker builds a tracker over a temp session-state dir and the
// given fake process lister.
func newTestTracker(t *testing.T, lister ProcessLister) (*Tracker, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SessionStateDir = dir
	reader := events.NewReader(dir, 0, 0)
	return New(cfg, reader, lister), dir
}

func writeEvents(t *testing.T, dir, sessionID string, lines ...string) {
	t.Helper()
	sessionDir := filepath.Join(dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(sessionDir, "events.jsonl"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyStateNoEvents(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	st := tr.ClassifyState("missing")
	if st.State != StateUnknown {
		t.Errorf("state = %q, want unknown", st.State)
	}
}

func TestClassifyStateWaitingOnAskUser(t *testing.T) {
	tr, dir := newTestTracker(t, nil)
	writeEvents(t, dir, "s1",
		`{"type":"tool.execution_start","data":{"toolCallId":"t1","toolName":"ask_user","arguments":"{\"question\":\"Pick one\",\"choices\":[\"A\",\"B\"]}"}}`,
	)

	st := tr.ClassifyState("s1")
	if st.State != StateWaiting {
		t.Fatalf("state = %q, want waiting", st.State)
	}
	if st.WaitingContext != "Pick one [A / B]" {
		t.Errorf("waiting context = %q", st.WaitingContext)
	}
}

func TestClassifyStateWaitingChoicesCapped(t *testing.T) {
	tr, dir := newTestTracker(t, nil)
	writeEvents(t, dir, "s1",
		`{"type":"tool.execution_start","data":{"toolCallId":"t1","toolName":"ask_permission","arguments":"{\"question\":\"Allow?\",\"choices\":[\"1\",\"2\",\"3\",\"4\",\"5\",\"6\"]}"}}`,
	)

	st := tr.ClassifyState("s1")
	if st.WaitingContext != "Allow? [1 / 2 / 3 / 4]" {
		t.Errorf("waiting context = %q, want first four choices", st.WaitingContext)
	}
}

func TestClassifyStateIdleAfterTurnEnd(t *testing.T) {
	tr, dir := newTestTracker(t, nil)
	writeEvents(t, dir, "s1",
		`{"type":"tool.execution_start","data":{"toolCallId":"t1","toolName":"bash"}}`,
		`{"type":"tool.execution_complete","data":{"toolCallId":"t1"}}`,
		`{"type":"assistant.turn_end"}`,
	)

	st := tr.ClassifyState("s1")
	if st.State != StateIdle {
		t.Fatalf("state = %q, want idle", st.State)
	}
	if st.WaitingContext == "" {
		t.Error("idle state should carry a context message")
	}
}

func TestClassifyStateWorkingWithPendingTool(t *testing.T) {
	tr, dir := newTestTracker(t, nil)
	now := time.Now().UTC().Format(time.RFC3339)
	writeEvents(t, dir, "s1",
		fmt.Sprintf(`{"type":"tool.execution_start","timestamp":%q,"data":{"toolCallId":"t1","toolName":"bash"}}`, now),
	)

	st := tr.ClassifyState("s1")
	if st.State != StateWorking {
		t.Errorf("state = %q, want working", st.State)
	}
}

func TestClassifyStateStalePendingToolMeansWaiting(t *testing.T) {
	tr, dir := newTestTracker(t, nil)
	old := time.Now().UTC().Add(-120 * time.Second).Format(time.RFC3339)
	writeEvents(t, dir, "s1",
		fmt.Sprintf(`{"type":"tool.execution_start","timestamp":%q,"data":{"toolCallId":"t1","toolName":"bash"}}`, old),
	)

	st := tr.ClassifyState("s1")
	if st.State != StateWaiting {
		t.Fatalf("state = %q, want waiting for stale pending tool", st.State)
	}
	if st.WaitingContext != staleWaitingContext {
		t.Errorf("waiting context = %q", st.WaitingContext)
	}
}

func TestClassifyStateReportIntentIsNotWork(t *testing.T) {
	tr, dir := newTestTracker(t, nil)
	old := time.Now().UTC().Add(-120 * time.Second).Format(time.RFC3339)
	writeEvents(t, dir, "s1",
		fmt.Sprintf(`{"type":"tool.execution_start","timestamp":%q,"data":{"toolCallId":"t1","toolName":"report_intent"}}`, old),
	)

	// A lone pending report_intent must not trigger the staleness override;
	// classification falls through to the last event type.
	st := tr.ClassifyState("s1")
	if st.State != StateWorking {
		t.Errorf("state = %q, want working from last event type", st.State)
	}
}

func TestClassifyStateThinking(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"after_tool_complete", `{"type":"tool.execution_complete","data":{"toolCallId":"t1"}}`},
		{"after_assistant_message", `{"type":"assistant.message"}`},
		{"after_user_message", `{"type":"user.message"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, dir := newTestTracker(t, nil)
			writeEvents(t, dir, "s1", tt.line)
			if st := tr.ClassifyState("s1"); st.State != StateThinking {
				t.Errorf("state = %q, want thinking", st.State)
			}
		})
	}
}

func TestClassifyStateCountsBackgroundTasks(t *testing.T) {
	tr, dir := newTestTracker(t, nil)
	writeEvents(t, dir, "s1",
		`{"type":"subagent.started","data":{"toolCallId":"a1","agentName":"tester"}}`,
		`{"type":"subagent.started","data":{"toolCallId":"a2","agentName":"writer"}}`,
		`{"type":"subagent.completed","data":{"toolCallId":"a1"}}`,
	)

	st := tr.ClassifyState("s1")
	if st.BGTasks != 1 {
		t.Fatalf("BGTasks = %d, want 1", st.BGTasks)
	}
	if st.BGTaskList[0].AgentName != "writer" {
		t.Errorf("remaining task = %q, want writer", st.BGTaskList[0].AgentName)
	}
	// subagent.completed is the last event and nothing is pending.
	if st.State != StateThinking {
		t.Errorf("state = %q, want thinking", st.State)
	}
}
