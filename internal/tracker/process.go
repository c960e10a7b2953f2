package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/copilot-dashboard/backend/internal/events"
)

// ProcessRecord is one row of the OS process table, as much of it as the
// enumerator needs. Listing is behind an interface so the enumeration and
// correlation logic stays platform-agnostic and testable with fakes.
type ProcessRecord struct {
	PID        int
	PPID       int
	Name       string
	Cmdline    string
	CreateTime time.Time
}

type ProcessLister interface {
	Processes() ([]ProcessRecord, error)
}

// PSUtilLister lists processes via gopsutil. Individual per-process lookup
// errors are skipped: processes exit between the table read and the field
// reads all the time.
type PSUtilLister struct{}

func (PSUtilLister) Processes() ([]ProcessRecord, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	records := make([]ProcessRecord, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		ppid, _ := p.Ppid()
		cmdline, _ := p.Cmdline()
		var created time.Time
		if ms, err := p.CreateTime(); err == nil && ms > 0 {
			created = time.UnixMilli(ms)
		}
		records = append(records, ProcessRecord{
			PID:        int(p.Pid),
			PPID:       int(ppid),
			Name:       name,
			Cmdline:    cmdline,
			CreateTime: created,
		})
	}
	return records, nil
}

// ProcessInfo describes one running Copilot CLI process. Rebuilt wholesale
// on every cache refresh, never persisted.
type ProcessInfo struct {
	PID            int                     `json:"pid"`
	ParentPID      int                     `json:"parent_pid"`
	TerminalPID    int                     `json:"terminal_pid"`
	TerminalName   string                  `json:"terminal_name"`
	Cmdline        string                  `json:"cmdline"`
	Yolo           bool                    `json:"yolo"`
	State          State                   `json:"state"`
	WaitingContext string                  `json:"waiting_context"`
	BGTasks        int                     `json:"bg_tasks"`
	BGTaskList     []events.BackgroundTask `json:"bg_task_list"`
	MCPServers     []string                `json:"mcp_servers"`
}

// enumerate scans the process table for Copilot CLI processes and maps them
// to session IDs. Processes carrying --resume identify themselves; the rest
// go through creation-time correlation. A --resume match is never displaced
// by a correlated one.
func (t *Tracker) enumerate() (map[string]*ProcessInfo, error) {
	records, err := t.lister.Processes()
	if err != nil {
		return nil, err
	}

	byPID := make(map[int]ProcessRecord, len(records))
	for _, rec := range records {
		byPID[rec.PID] = rec
	}

	selfPID := os.Getpid()
	sessions := make(map[string]*ProcessInfo)
	resumed := make(map[string]bool)

	type pending struct {
		rec  ProcessRecord
		info *ProcessInfo
	}
	var unmatched []pending

	for _, rec := range records {
		if rec.PID == selfPID || !t.isCopilotProcess(rec) {
			continue
		}

		termPID, termName := t.findTerminal(rec.PPID, byPID)
		info := &ProcessInfo{
			PID:          rec.PID,
			ParentPID:    rec.PPID,
			TerminalPID:  termPID,
			TerminalName: termName,
			Cmdline:      rec.Cmdline,
			Yolo:         strings.Contains(rec.Cmdline, "--yolo"),
			State:        StateUnknown,
			MCPServers:   parseMCPConfig(mcpConfigPath(rec.Cmdline)),
		}

		if sid := parseResumeID(rec.Cmdline); sid != "" {
			sessions[sid] = info
			resumed[sid] = true
			continue
		}
		unmatched = append(unmatched, pending{rec: rec, info: info})
	}

	for _, p := range unmatched {
		sid := t.matchProcessToSession(p.rec.CreateTime)
		if sid == "" || resumed[sid] {
			continue
		}
		sessions[sid] = p.info
	}

	return sessions, nil
}

// isCopilotProcess reports whether a process record is the Copilot CLI:
// either the binary itself, or node running a copilot script (but not a
// node_modules/.bin shim).
func (t *Tracker) isCopilotProcess(rec ProcessRecord) bool {
	name := strings.ToLower(rec.Name)
	if t.binaryNames[name] {
		return true
	}

	fields := strings.Fields(rec.Cmdline)
	if len(fields) == 0 {
		return false
	}
	exe := strings.ToLower(filepath.Base(fields[0]))
	if t.binaryNames[exe] {
		return true
	}
	if exe == "node" || exe == "node.exe" {
		for _, arg := range fields[1:] {
			if strings.Contains(strings.ToLower(arg), "copilot") && !strings.Contains(arg, "node_modules/.bin") {
				return true
			}
		}
	}
	return false
}

// findTerminal walks the ancestor chain looking for a known terminal or IDE
// process. Bounded depth; a cycle in stale ppid data stops the walk.
func (t *Tracker) findTerminal(startPID int, byPID map[int]ProcessRecord) (int, string) {
	visited := make(map[int]bool)
	pid := startPID
	for i := 0; i < t.maxAncestryDepth; i++ {
		rec, ok := byPID[pid]
		if !ok {
			break
		}
		name := strings.ToLower(rec.Name)
		if t.terminalNames[name] {
			return rec.PID, rec.Name
		}
		if runtime.GOOS != "windows" {
			for _, sub := range t.terminalSubstrings {
				if strings.Contains(name, sub) {
					return rec.PID, rec.Name
				}
			}
		}
		if rec.PPID == 0 || visited[pid] {
			break
		}
		visited[pid] = true
		pid = rec.PPID
	}
	return 0, ""
}

// parseResumeID extracts the session ID from a --resume flag, tolerating
// "--resume <id>", "--resume=<id>", and shell quoting.
func parseResumeID(cmdline string) string {
	fields := strings.Fields(cmdline)
	for i, f := range fields {
		if f == "--resume" && i+1 < len(fields) {
			return strings.Trim(fields[i+1], `"'`)
		}
		if v, ok := strings.CutPrefix(f, "--resume="); ok {
			return strings.Trim(v, `"'`)
		}
	}
	return ""
}

// mcpConfigPath extracts the --additional-mcp-config path, stripping the
// CLI's optional @ prefix and quoting.
func mcpConfigPath(cmdline string) string {
	fields := strings.Fields(cmdline)
	for i, f := range fields {
		if f == "--additional-mcp-config" && i+1 < len(fields) {
			return strings.Trim(strings.TrimPrefix(fields[i+1], "@"), `"'`)
		}
		if v, ok := strings.CutPrefix(f, "--additional-mcp-config="); ok {
			return strings.Trim(strings.TrimPrefix(v, "@"), `"'`)
		}
	}
	return ""
}

// parseMCPConfig reads the referenced JSON config and returns the names of
// its mcpServers. Any failure means an empty list, never an error: a bad
// config file must not break process enumeration.
func parseMCPConfig(path string) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg struct {
		MCPServers map[string]json.RawMessage `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	names := make([]string, 0, len(cfg.MCPServers))
	for name := range cfg.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
