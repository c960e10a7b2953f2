package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strings"
)

// scanLines walks every complete line of a session's log, calling fn with
// each trimmed non-empty line. Full scans must see every line (unlike the
// tail reads), so no window is applied. Missing files end the scan silently.
func (r *Reader) scanLines(sessionID string, fn func(line []byte)) {
	f, err := os.Open(r.eventsPath(sessionID))
	if err != nil {
		return
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			fn(trimmed)
		}
		if err != nil {
			// io.EOF or a read error: either way the scan is done.
			return
		}
	}
}

// ScanEventData linearly scans the whole log and aggregates the derived
// metadata the session list needs. Substring pre-checks keep the scan cheap;
// the contract is only that unparseable lines are skipped.
func (r *Reader) ScanEventData(sessionID string) EventData {
	var (
		result   EventData
		mcpFound bool
	)

	r.scanLines(sessionID, func(line []byte) {
		s := string(line)

		if result.Cwd == "" && (strings.Contains(s, `"session.start"`) || strings.Contains(s, `"session.resume"`)) {
			var ev Event
			if err := json.Unmarshal(line, &ev); err == nil && ev.Data.Context != nil {
				result.Cwd = ev.Data.Context.Cwd
				result.Branch = ev.Data.Context.Branch
				result.Repository = ev.Data.Context.Repository
			}
			return
		}

		if !mcpFound && (strings.Contains(s, `"infoType":"mcp"`) || strings.Contains(s, `"infoType": "mcp"`)) {
			var ev Event
			if err := json.Unmarshal(line, &ev); err == nil {
				result.MCPServers = parseMCPMessage(ev.Data.Message)
				mcpFound = true
			}
			return
		}

		if strings.Contains(s, `"report_intent"`) && strings.Contains(s, `"tool.execution_start"`) {
			var ev Event
			if err := json.Unmarshal(line, &ev); err == nil {
				if args, ok := ev.Data.Args(); ok && args.Intent != "" {
					result.Intent = args.Intent
				}
			}
			return
		}

		if strings.Contains(s, `"tool.execution_complete"`) {
			result.ToolCalls++
		}
		if strings.Contains(s, `"subagent.completed"`) {
			result.SubagentRuns++
		}
	})

	return result
}

// parseMCPMessage extracts server names from the CLI's informational MCP
// line. Known forms: "Configured MCP servers: a, b", the builtin
// "GitHub MCP Server" notice, or a bare message.
func parseMCPMessage(msg string) []string {
	if msg == "" {
		return nil
	}
	if idx := strings.Index(msg, "Configured MCP servers:"); idx >= 0 {
		rest := msg[idx+len("Configured MCP servers:"):]
		var names []string
		for _, n := range strings.Split(rest, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		return names
	}
	if strings.Contains(msg, "GitHub MCP Server") {
		return []string{"github"}
	}
	return []string{msg}
}

// SubagentTally reconciles subagent.started against subagent.completed over
// the whole log by toolCallId. The remainder are the session's live
// background tasks.
func (r *Reader) SubagentTally(sessionID string) (int, []BackgroundTask) {
	type startedTask struct {
		task  BackgroundTask
		order int
	}
	started := make(map[string]startedTask)
	seq := 0

	r.scanLines(sessionID, func(line []byte) {
		s := string(line)
		switch {
		case strings.Contains(s, `"subagent.started"`):
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil || ev.Data.ToolCallID == "" {
				return
			}
			name := ev.Data.AgentDisplayName
			if name == "" {
				name = ev.Data.AgentName
			}
			started[ev.Data.ToolCallID] = startedTask{
				task:  BackgroundTask{AgentName: name, Description: ev.Data.AgentDescription},
				order: seq,
			}
			seq++
		case strings.Contains(s, `"subagent.completed"`):
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				return
			}
			delete(started, ev.Data.ToolCallID)
		}
	})

	remaining := make([]startedTask, 0, len(started))
	for _, st := range started {
		remaining = append(remaining, st)
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].order < remaining[j].order })

	tasks := make([]BackgroundTask, len(remaining))
	for i, st := range remaining {
		tasks[i] = st.task
	}
	return len(tasks), tasks
}

// RecentOutput returns the last maxLines lines of the most recent tool's
// output. Only the final tool.execution_complete event in the tail window
// counts; earlier ones are deliberately discarded.
func (r *Reader) RecentOutput(sessionID string, maxLines int) []string {
	lines, ok := r.tailLines(r.eventsPath(sessionID), r.outputTailBuffer)
	if !ok {
		return nil
	}

	var output []string
	for _, line := range lines {
		if !bytes.Contains(line, []byte("tool.execution_complete")) {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type != "tool.execution_complete" {
			continue
		}
		if ev.Data.Result == nil {
			continue
		}
		content := strings.TrimSpace(ev.Data.Result.Content)
		if len(content) < 5 || content == "Intent logged" {
			continue
		}
		output = strings.Split(content, "\n")
	}

	if len(output) > maxLines {
		output = output[len(output)-maxLines:]
	}
	return output
}

// ToolCounts tallies tool.execution_start events by tool name and returns
// the top n, most-used first.
func (r *Reader) ToolCounts(sessionID string, n int) []ToolCount {
	counts := make(map[string]int)

	r.scanLines(sessionID, func(line []byte) {
		if !bytes.Contains(line, []byte(`"tool.execution_start"`)) {
			return
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type != "tool.execution_start" {
			return
		}
		if ev.Data.ToolName != "" {
			counts[ev.Data.ToolName]++
		}
	})

	result := make([]ToolCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, ToolCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
