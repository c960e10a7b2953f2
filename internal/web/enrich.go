package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/copilot-dashboard/backend/internal/events"
	"github.com/copilot-dashboard/backend/internal/grouping"
	"github.com/copilot-dashboard/backend/internal/store"
	"github.com/copilot-dashboard/backend/internal/tracker"
)

const recentActivityMaxLen = 120

// SessionView is one entry of the /api/sessions list: a session-store row
// plus everything derived from the process table and the event log.
type SessionView struct {
	ID              string   `json:"id"`
	Cwd             string   `json:"cwd"`
	Repository      string   `json:"repository"`
	Branch          string   `json:"branch"`
	Summary         string   `json:"summary"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	TurnCount       int      `json:"turn_count"`
	FileCount       int      `json:"file_count"`
	CheckpointCount int      `json:"checkpoint_count"`
	TimeAgo         string   `json:"time_ago"`
	CreatedAgo      string   `json:"created_ago"`
	IsRunning       bool     `json:"is_running"`
	State           *string  `json:"state"`
	WaitingContext  string   `json:"waiting_context"`
	BGTasks         int      `json:"bg_tasks"`
	Group           string   `json:"group"`
	RecentActivity  string   `json:"recent_activity"`
	RestartCmd      string   `json:"restart_cmd"`
	MCPServers      []string `json:"mcp_servers"`
	ToolCalls       int      `json:"tool_calls"`
	SubagentRuns    int      `json:"subagent_runs"`
	Intent          string   `json:"intent"`
}

// BuildSessions produces the full enriched session list. It is shared by
// the /api/sessions handler and the WebSocket snapshot push.
func (s *Server) BuildSessions(ctx context.Context) ([]SessionView, error) {
	rows, err := s.store.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	running := s.tracker.RunningSessions()
	views := make([]SessionView, 0, len(rows))
	for _, row := range rows {
		proc := running[row.ID]
		evt := s.tracker.SessionEventData(row.ID, proc != nil)
		views = append(views, s.enrich(row, proc, evt))
	}
	return views, nil
}

func (s *Server) enrich(row store.SessionRow, proc *tracker.ProcessInfo, evt *events.EventData) SessionView {
	v := SessionView{
		ID:              row.ID,
		Cwd:             row.Cwd,
		Repository:      row.Repository,
		Branch:          row.Branch,
		Summary:         row.Summary,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		TurnCount:       row.TurnCount,
		FileCount:       row.FileCount,
		CheckpointCount: row.CheckpointCount,
		TimeAgo:         timeAgo(row.UpdatedAt),
		CreatedAgo:      timeAgo(row.CreatedAt),
		IsRunning:       proc != nil,
	}

	if proc != nil {
		state := string(proc.State)
		v.State = &state
		v.WaitingContext = proc.WaitingContext
		v.BGTasks = proc.BGTasks
	}

	// Backfill from events when the store row has NULLs; sessions started
	// before the SESSION_STORE feature landed only exist in the event logs.
	if v.Cwd == "" {
		v.Cwd = evt.Cwd
	}
	if v.Branch == "" {
		v.Branch = evt.Branch
	}
	if v.Repository == "" {
		v.Repository = evt.Repository
	}

	v.Group = s.grouper.Name(grouping.Session{
		Cwd:            v.Cwd,
		Repository:     v.Repository,
		Summary:        row.Summary,
		FirstMsg:       row.FirstMsg,
		LastCpOverview: row.LastCpOverview,
	})
	v.RecentActivity = recentActivity(row)

	if proc != nil {
		v.RestartCmd = restartCommand(row.ID, v.Cwd, proc.Yolo, proc.Cmdline)
		v.MCPServers = proc.MCPServers
	} else {
		v.RestartCmd = restartCommand(row.ID, v.Cwd, false, "")
		v.MCPServers = evt.MCPServers
	}
	if v.MCPServers == nil {
		v.MCPServers = []string{}
	}
	v.ToolCalls = evt.ToolCalls
	v.SubagentRuns = evt.SubagentRuns
	v.Intent = evt.Intent
	return v
}

// timeAgo renders an ISO timestamp as a coarse relative string. Anything
// unparseable passes through untouched so the client still shows something.
func timeAgo(iso string) string {
	if iso == "" {
		return "unknown"
	}
	t, err := parseISO(iso)
	if err != nil {
		return iso
	}
	seconds := int(time.Since(t).Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh ago", seconds/3600)
	default:
		return fmt.Sprintf("%dd ago", seconds/86400)
	}
}

func parseISO(iso string) (time.Time, error) {
	s := strings.Replace(iso, "Z", "+00:00", 1)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", iso)
}

// recentActivity summarises the latest checkpoint. The title is preferred
// unless it just repeats the session summary.
func recentActivity(row store.SessionRow) string {
	if row.LastCpTitle != "" && !strings.EqualFold(row.LastCpTitle, row.Summary) {
		return row.LastCpTitle
	}
	if row.LastCpOverview != "" {
		first, _, _ := strings.Cut(row.LastCpOverview, ". ")
		if len(first) > recentActivityMaxLen {
			return first[:recentActivityMaxLen-3] + "..."
		}
		return first
	}
	return ""
}

// restartCommand builds a shell command that resumes the session with the
// same flags the live process was started with. The --resume pair is
// stripped since a fresh one is prepended.
func restartCommand(sessionID, cwd string, yolo bool, cmdline string) string {
	cmd := "copilot --resume " + sessionID
	if extra := extraArgs(cmdline); extra != "" {
		cmd += " " + extra
	} else if yolo {
		cmd += " --yolo"
	}
	if cwd != "" {
		return fmt.Sprintf("cd %q && %s", cwd, cmd)
	}
	return cmd
}

func extraArgs(cmdline string) string {
	if cmdline == "" {
		return ""
	}
	parts := splitCommandLine(cmdline)

	start := 0
	for i, p := range parts {
		if strings.Contains(strings.ToLower(p), "copilot") {
			start = i + 1
			break
		}
	}

	var extra []string
	skipNext := false
	for _, p := range parts[start:] {
		if skipNext {
			skipNext = false
			continue
		}
		if p == "--resume" {
			skipNext = true
			continue
		}
		extra = append(extra, p)
	}
	return strings.Join(extra, " ")
}

// splitCommandLine splits a command line on whitespace while respecting
// single and double quotes. Unterminated quotes fall back to a plain split.
func splitCommandLine(cmdline string) []string {
	var (
		parts   []string
		current strings.Builder
		quote   rune
		inToken bool
	)
	for _, r := range cmdline {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			if inToken {
				parts = append(parts, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return strings.Fields(cmdline)
	}
	if inToken {
		parts = append(parts, current.String())
	}
	return parts
}
