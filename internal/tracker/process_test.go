package tracker

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseResumeID(t *testing.T) {
	tests := []struct {
		name    string
		cmdline string
		want    string
	}{
		{"separate", "copilot --resume abc-123", "abc-123"},
		{"equals", "copilot --resume=abc-123", "abc-123"},
		{"quoted", `copilot --resume "abc-123"`, "abc-123"},
		{"single_quoted", "copilot --resume='abc-123'", "abc-123"},
		{"with_other_flags", "copilot --yolo --resume abc-123 --banner", "abc-123"},
		{"absent", "copilot --yolo", ""},
		{"trailing_flag", "copilot --resume", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseResumeID(tt.cmdline); got != tt.want {
				t.Errorf("parseResumeID(%q) = %q, want %q", tt.cmdline, got, tt.want)
			}
		})
	}
}

func TestMCPConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		cmdline string
		want    string
	}{
		{"separate", "copilot --additional-mcp-config /tmp/mcp.json", "/tmp/mcp.json"},
		{"equals", "copilot --additional-mcp-config=/tmp/mcp.json", "/tmp/mcp.json"},
		{"at_prefix", "copilot --additional-mcp-config @/tmp/mcp.json", "/tmp/mcp.json"},
		{"quoted", `copilot --additional-mcp-config "/tmp/mcp.json"`, "/tmp/mcp.json"},
		{"absent", "copilot --resume x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mcpConfigPath(tt.cmdline); got != tt.want {
				t.Errorf("mcpConfigPath(%q) = %q, want %q", tt.cmdline, got, tt.want)
			}
		})
	}
}

func TestParseMCPConfig(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "mcp.json")
	if err := os.WriteFile(good, []byte(`{"mcpServers":{"slack":{},"github":{"url":"x"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := parseMCPConfig(good); !reflect.DeepEqual(got, []string{"github", "slack"}) {
		t.Errorf("parseMCPConfig(good) = %v, want sorted names", got)
	}
	if got := parseMCPConfig(bad); got != nil {
		t.Errorf("parseMCPConfig(bad) = %v, want nil", got)
	}
	if got := parseMCPConfig(filepath.Join(dir, "missing.json")); got != nil {
		t.Errorf("parseMCPConfig(missing) = %v, want nil", got)
	}
	if got := parseMCPConfig(""); got != nil {
		t.Errorf("parseMCPConfig(empty path) = %v, want nil", got)
	}
}

func TestIsCopilotProcess(t *testing.T) {
	tr, _ := newTestTracker(t, nil)

	tests := []struct {
		name string
		rec  ProcessRecord
		want bool
	}{
		{"binary_name", ProcessRecord{Name: "copilot"}, true},
		{"binary_name_exe", ProcessRecord{Name: "copilot.exe"}, true},
		{"binary_in_cmdline", ProcessRecord{Name: "weird", Cmdline: "/usr/local/bin/copilot --resume x"}, true},
		{"node_running_copilot", ProcessRecord{Name: "node", Cmdline: "node /opt/copilot/index.js"}, true},
		{"node_bin_shim", ProcessRecord{Name: "node", Cmdline: "node node_modules/.bin/copilot"}, false},
		{"unrelated", ProcessRecord{Name: "bash", Cmdline: "bash -c ls"}, false},
		{"empty", ProcessRecord{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.isCopilotProcess(tt.rec); got != tt.want {
				t.Errorf("isCopilotProcess(%+v) = %v, want %v", tt.rec, got, tt.want)
			}
		})
	}
}

func TestFindTerminal(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	byPID := map[int]ProcessRecord{
		10: {PID: 10, PPID: 20, Name: "zsh"},
		20: {PID: 20, PPID: 30, Name: "tmux: server"},
		30: {PID: 30, PPID: 1, Name: "systemd"},
	}

	pid, name := tr.findTerminal(10, byPID)
	if pid != 20 || name != "tmux: server" {
		t.Errorf("findTerminal() = %d %q, want the tmux ancestor", pid, name)
	}
}

func TestFindTerminalNoMatch(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	byPID := map[int]ProcessRecord{
		10: {PID: 10, PPID: 30, Name: "zsh"},
		30: {PID: 30, PPID: 1, Name: "systemd"},
	}

	if pid, name := tr.findTerminal(10, byPID); pid != 0 || name != "" {
		t.Errorf("findTerminal() = %d %q, want no match", pid, name)
	}
}

func TestFindTerminalBreaksCycles(t *testing.T) {
	tr, _ := newTestTracker(t, nil)
	byPID := map[int]ProcessRecord{
		10: {PID: 10, PPID: 20, Name: "zsh"},
		20: {PID: 20, PPID: 10, Name: "bash"},
	}

	if pid, _ := tr.findTerminal(10, byPID); pid != 0 {
		t.Errorf("findTerminal() = %d, want cycle to end walk", pid)
	}
}
