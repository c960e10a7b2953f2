package events

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeEvents creates a session directory with the given events.jsonl lines.
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

func TestRecentLastN(t *testing.T) {
	dir := t.TempDir()
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, fmt.Sprintf(`{"type":"assistant.message","data":{"message":"msg-%d"}}`, i))
	}
	writeEvents(t, dir, "s1", lines...)

	r := NewReader(dir, 0, 0)
	got := r.Recent("s1", 5)
	if len(got) != 5 {
		t.Fatalf("Recent() returned %d events, want 5", len(got))
	}
	if got[4].Data.Message != "msg-49" {
		t.Errorf("last event message = %q, want %q", got[4].Data.Message, "msg-49")
	}
	if got[0].Data.Message != "msg-45" {
		t.Errorf("first event message = %q, want %q", got[0].Data.Message, "msg-45")
	}
}

func TestRecentSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	writeEvents(t, dir, "s1",
		`{"type":"user.message"}`,
		`{not valid json`,
		`{"type":"assistant.turn_end"}`,
	)

	r := NewReader(dir, 0, 0)
	got := r.Recent("s1", 10)
	if len(got) != 2 {
		t.Fatalf("Recent() returned %d events, want 2", len(got))
	}
	if got[1].Type != "assistant.turn_end" {
		t.Errorf("last event type = %q, want assistant.turn_end", got[1].Type)
	}
}

func TestRecentDiscardsTruncatedFirstLine(t *testing.T) {
	dir := t.TempDir()
	// Small tail buffer so the window starts mid-file, cutting the first
	// visible line in half.
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, fmt.Sprintf(`{"type":"assistant.message","data":{"message":"padding-padding-padding-%d"}}`, i))
	}
	writeEvents(t, dir, "s1", lines...)

	r := NewReader(dir, 256, 0)
	got := r.Recent("s1", 30)
	if len(got) == 0 {
		t.Fatal("Recent() returned no events")
	}
	// Every returned event must have parsed cleanly.
	for _, ev := range got {
		if ev.Type != "assistant.message" {
			t.Errorf("unexpected event type %q", ev.Type)
		}
	}
	if got[len(got)-1].Data.Message != "padding-padding-padding-19" {
		t.Errorf("last message = %q, want the final line", got[len(got)-1].Data.Message)
	}
}

func TestRecentMissingFile(t *testing.T) {
	r := NewReader(t.TempDir(), 0, 0)
	if got := r.Recent("nope", 10); got != nil {
		t.Errorf("Recent() on missing file = %v, want nil", got)
	}
}

func TestFirst(t *testing.T) {
	dir := t.TempDir()
	writeEvents(t, dir, "s1",
		`{"type":"session.start","timestamp":"2026-08-30T10:00:00Z"}`,
		`{"type":"user.message"}`,
	)

	r := NewReader(dir, 0, 0)
	ev, ok := r.First("s1")
	if !ok {
		t.Fatal("First() returned ok=false")
	}
	if ev.Type != "session.start" {
		t.Errorf("First() type = %q, want session.start", ev.Type)
	}

	if _, ok := r.First("missing"); ok {
		t.Error("First() on missing session returned ok=true")
	}
}

func TestSessionIDs(t *testing.T) {
	dir := t.TempDir()
	writeEvents(t, dir, "a")
	writeEvents(t, dir, "b")
	if err := os.WriteFile(filepath.Join(dir, "stray-file"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewReader(dir, 0, 0)
	ids := r.SessionIDs()
	if len(ids) != 2 {
		t.Fatalf("SessionIDs() = %v, want 2 directories", ids)
	}

	empty := NewReader(filepath.Join(dir, "does-not-exist"), 0, 0)
	if got := empty.SessionIDs(); got != nil {
		t.Errorf("SessionIDs() on missing root = %v, want nil", got)
	}
}

func TestEventTime(t *testing.T) {
	tests := []struct {
		name      string
		timestamp string
		wantOK    bool
	}{
		{"rfc3339", "2026-08-30T10:00:00Z", true},
		{"nano", "2026-08-30T10:00:00.123456789Z", true},
		{"offset", "2026-08-30T10:00:00+02:00", true},
		{"empty", "", false},
		{"garbage", "yesterday", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Event{Timestamp: tt.timestamp}.Time()
			if ok != tt.wantOK {
				t.Errorf("Time() ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestArgsDoubleEncoded(t *testing.T) {
	direct := Payload{Arguments: []byte(`{"question":"Proceed?","choices":["Yes","No"]}`)}
	args, ok := direct.Args()
	if !ok || args.Question != "Proceed?" || len(args.Choices) != 2 {
		t.Errorf("Args() direct = %+v ok=%v", args, ok)
	}

	wrapped := Payload{Arguments: []byte(`"{\"question\":\"Proceed?\"}"`)}
	args, ok = wrapped.Args()
	if !ok || args.Question != "Proceed?" {
		t.Errorf("Args() double-encoded = %+v ok=%v", args, ok)
	}

	if _, ok := (Payload{}).Args(); ok {
		t.Error("Args() on empty payload returned ok=true")
	}
}
