package tracker

// FocusResult reports the outcome of a window-focus attempt. Platform gaps
// are a structured failure message, never an error or panic.
type FocusResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FocusSession brings the terminal window running a session to the
// foreground, best effort. The actual focusing is platform-specific; see
// the focus_* files.
func (t *Tracker) FocusSession(sessionID string) FocusResult {
	sessions := t.RunningSessions()
	info, ok := sessions[sessionID]
	if !ok {
		return FocusResult{Message: "Session not found among running processes."}
	}
	return focusWindow(info)
}
