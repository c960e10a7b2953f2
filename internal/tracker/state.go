package tracker

import (
	"strings"
	"time"

	"github.com/copilot-dashboard/backend/internal/events"
)

// State is the coarse run state inferred for a session from its event log.
type State string

const (
	StateWaiting  State = "waiting"
	StateWorking  State = "working"
	StateThinking State = "thinking"
	StateIdle     State = "idle"
	StateUnknown  State = "unknown"
)

const (
	idleContext         = "Session idle — waiting for user message"
	staleWaitingContext = "Session likely waiting for input"
)

// waitingTools are tool names whose pending execution means the CLI is
// blocked on the user.
var waitingTools = map[string]bool{
	"ask_user":       true,
	"ask_permission": true,
}

// SessionState is the classifier's output for one session.
type SessionState struct {
	State          State
	WaitingContext string
	BGTasks        int
	BGTaskList     []events.BackgroundTask
}

// ClassifyState infers a session's run state from its recent events. It is a
// pure function of the log at call time; all state lives on disk.
//
// Priority order: pending waiting-tool, pending work (with a staleness
// override: an active tool still emits events, so a long silence means the
// session is really waiting), then the last event's type.
func (t *Tracker) ClassifyState(sessionID string) SessionState {
	evs := t.reader.Recent(sessionID, t.recentEventCount)
	if len(evs) == 0 {
		return SessionState{State: StateUnknown}
	}

	bg, bgList := t.reader.SubagentTally(sessionID)

	// Pending tool calls among the recent events, in start order.
	pendingByID := make(map[string]events.Payload)
	var pendingOrder []string
	for _, ev := range evs {
		switch ev.Type {
		case "tool.execution_start":
			if id := ev.Data.ToolCallID; id != "" {
				if _, seen := pendingByID[id]; !seen {
					pendingOrder = append(pendingOrder, id)
				}
				pendingByID[id] = ev.Data
			}
		case "tool.execution_complete":
			delete(pendingByID, ev.Data.ToolCallID)
		}
	}

	hasPendingWork := false
	for _, id := range pendingOrder {
		data, ok := pendingByID[id]
		if !ok {
			continue
		}
		if waitingTools[data.ToolName] {
			return SessionState{
				State:          StateWaiting,
				WaitingContext: waitingContextFor(data),
				BGTasks:        bg,
				BGTaskList:     bgList,
			}
		}
		if data.ToolName != "report_intent" {
			hasPendingWork = true
		}
	}

	if hasPendingWork {
		if ts, ok := evs[len(evs)-1].Time(); ok && time.Since(ts) > t.eventStaleness {
			return SessionState{
				State:          StateWaiting,
				WaitingContext: staleWaitingContext,
				BGTasks:        bg,
				BGTaskList:     bgList,
			}
		}
		return SessionState{State: StateWorking, BGTasks: bg, BGTaskList: bgList}
	}

	// No pending work: classify by the most recent event alone.
	last := evs[len(evs)-1]
	st := SessionState{State: StateUnknown, BGTasks: bg, BGTaskList: bgList}
	switch last.Type {
	case "assistant.turn_end":
		st.State = StateIdle
		st.WaitingContext = idleContext
	case "tool.execution_start":
		if waitingTools[last.Data.ToolName] {
			st.State = StateWaiting
			if args, ok := last.Data.Args(); ok {
				st.WaitingContext = args.Question
			}
		} else {
			st.State = StateWorking
		}
	case "subagent.started":
		st.State = StateWorking
	case "tool.execution_complete", "subagent.completed", "assistant.turn_start", "assistant.message", "user.message":
		st.State = StateThinking
	}
	return st
}

// waitingContextFor builds the waiting prompt shown on the dashboard: the
// question plus up to four choices in brackets.
func waitingContextFor(data events.Payload) string {
	args, ok := data.Args()
	if !ok {
		return ""
	}
	ctx := args.Question
	if len(args.Choices) > 0 {
		choices := args.Choices
		if len(choices) > 4 {
			choices = choices[:4]
		}
		ctx += " [" + strings.Join(choices, " / ") + "]"
	}
	return ctx
}
