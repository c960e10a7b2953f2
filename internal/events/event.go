package events

import (
	"encoding/json"
	"time"
)

// Event is one line of a session's append-only events.jsonl. The CLI writes
// these; this package only ever reads them.
type Event struct {
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
	Data      Payload `json:"data"`
}

// Payload is the union of the per-type data fields this dashboard cares
// about. Unknown fields are ignored.
type Payload struct {
	ToolCallID       string          `json:"toolCallId"`
	ToolName         string          `json:"toolName"`
	Arguments        json.RawMessage `json:"arguments"`
	AgentName        string          `json:"agentName"`
	AgentDisplayName string          `json:"agentDisplayName"`
	AgentDescription string          `json:"agentDescription"`
	InfoType         string          `json:"infoType"`
	Message          string          `json:"message"`
	Context          *SessionContext `json:"context"`
	Result           *ToolResult     `json:"result"`
}

// SessionContext is emitted inside session.start / session.resume events.
type SessionContext struct {
	Cwd        string `json:"cwd"`
	Branch     string `json:"branch"`
	Repository string `json:"repository"`
}

type ToolResult struct {
	Content string `json:"content"`
}

// ToolArguments are the decoded arguments of a tool.execution_start event.
type ToolArguments struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Intent   string   `json:"intent"`
}

// Time parses the event timestamp. Returns false for absent or unparseable
// timestamps; callers treat those events as undated rather than failing.
func (e Event) Time() (time.Time, bool) {
	if e.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Args decodes the tool arguments. The CLI sometimes double-encodes them as
// a JSON string containing JSON; both forms are accepted.
func (p Payload) Args() (ToolArguments, bool) {
	if len(p.Arguments) == 0 {
		return ToolArguments{}, false
	}
	raw := p.Arguments
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return ToolArguments{}, false
		}
		raw = []byte(inner)
	}
	var args ToolArguments
	if err := json.Unmarshal(raw, &args); err != nil {
		return ToolArguments{}, false
	}
	return args, true
}

// BackgroundTask describes a subagent that has started and not yet completed.
type BackgroundTask struct {
	AgentName   string `json:"agent_name"`
	Description string `json:"description"`
}

// EventData holds the full-file aggregates derived from one session's log.
type EventData struct {
	MCPServers   []string `json:"mcp_servers"`
	ToolCalls    int      `json:"tool_calls"`
	SubagentRuns int      `json:"subagent_runs"`
	Cwd          string   `json:"cwd"`
	Branch       string   `json:"branch"`
	Repository   string   `json:"repository"`
	Intent       string   `json:"intent"`
}

// ToolCount is a per-tool invocation tally for one session.
type ToolCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
