package tracker

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// TmuxPane represents a single tmux pane and its shell PID.
type TmuxPane struct {
	SessionName string
	WindowIndex int
	PaneIndex   int
	PanePID     int
	Target      string // pre-formatted "main:2.0" for tmux commands
}

// TmuxResolver maps process PIDs to their containing tmux pane.
type TmuxResolver struct {
	targetByPID map[int]string
}

// NewTmuxResolver queries tmux for all panes. Returns a nil resolver (not
// an error) when tmux is not running or not installed.
func NewTmuxResolver() *TmuxResolver {
	panes, err := listTmuxPanes()
	if err != nil || len(panes) == 0 {
		return nil
	}
	targetByPID := make(map[int]string, len(panes))
	for _, p := range panes {
		targetByPID[p.PanePID] = p.Target
	}
	return &TmuxResolver{targetByPID: targetByPID}
}

// Resolve walks the process tree from pid upward to find a PID that matches
// a tmux pane's shell PID. Stops after 10 ancestors to avoid runaway loops.
func (r *TmuxResolver) Resolve(pid int) (string, bool) {
	if r == nil {
		return "", false
	}

	current := pid
	for i := 0; i < 10; i++ {
		if target, ok := r.targetByPID[current]; ok {
			return target, true
		}
		parent := getParentPID(current)
		if parent <= 1 || parent == current {
			break
		}
		current = parent
	}
	return "", false
}

func getParentPID(pid int) int {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	ppid, err := p.Ppid()
	if err != nil {
		return 0
	}
	return int(ppid)
}

func listTmuxPanes() ([]TmuxPane, error) {
	path, err := exec.LookPath("tmux")
	if err != nil {
		return nil, err
	}

	out, err := exec.Command(path, "list-panes", "-a", "-F",
		"#{pane_pid}\t#{session_name}\t#{window_index}\t#{pane_index}").Output()
	if err != nil {
		return nil, err
	}
	return parseTmuxPanes(string(out)), nil
}

// parseTmuxPanes parses the tab-separated output of tmux list-panes.
func parseTmuxPanes(output string) []TmuxPane {
	var panes []TmuxPane
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		winIdx, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		paneIdx, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}

		panes = append(panes, TmuxPane{
			SessionName: fields[1],
			WindowIndex: winIdx,
			PaneIndex:   paneIdx,
			PanePID:     pid,
			Target:      fmt.Sprintf("%s:%d.%d", fields[1], winIdx, paneIdx),
		})
	}
	return panes
}

// tmuxFocusPane switches to the tmux pane identified by target.
func tmuxFocusPane(target string) error {
	tmuxPath, err := exec.LookPath("tmux")
	if err != nil {
		return fmt.Errorf("tmux not found: %w", err)
	}
	if err := exec.Command(tmuxPath, "select-window", "-t", target).Run(); err != nil {
		return fmt.Errorf("select-window: %w", err)
	}
	if err := exec.Command(tmuxPath, "select-pane", "-t", target).Run(); err != nil {
		return fmt.Errorf("select-pane: %w", err)
	}
	return nil
}
