//go:build !linux && !darwin

package tracker

func focusWindow(info *ProcessInfo) FocusResult {
	return FocusResult{Message: "Window focus is not supported on this platform."}
}
