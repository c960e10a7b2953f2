package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
)

const (
	defaultTailBuffer       = 16 * 1024
	defaultOutputTailBuffer = 64 * 1024
)

// Reader reads per-session events.jsonl logs under a session-state root
// directory. The logs are append-only and may be written concurrently by the
// CLI, so every read path tolerates truncated and malformed lines.
type Reader struct {
	dir              string
	tailBuffer       int
	outputTailBuffer int
}

func NewReader(dir string, tailBuffer, outputTailBuffer int) *Reader {
	if tailBuffer <= 0 {
		tailBuffer = defaultTailBuffer
	}
	if outputTailBuffer <= 0 {
		outputTailBuffer = defaultOutputTailBuffer
	}
	return &Reader{dir: dir, tailBuffer: tailBuffer, outputTailBuffer: outputTailBuffer}
}

func (r *Reader) eventsPath(sessionID string) string {
	return filepath.Join(r.dir, sessionID, "events.jsonl")
}

// SessionIDs lists every session directory under the root. A missing root
// yields an empty list.
func (r *Reader) SessionIDs() []string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids
}

// Recent returns the last count parsed events from a session's log, in file
// order. Only the final tail window of the file is read; lines entirely
// before the window are invisible to this read, which is fine because only
// recent events matter to callers. A missing file is an empty result.
func (r *Reader) Recent(sessionID string, count int) []Event {
	lines, ok := r.tailLines(r.eventsPath(sessionID), r.tailBuffer)
	if !ok {
		return nil
	}

	var parsed []Event
	for _, line := range lines {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			// Malformed lines are skipped, never fatal: the CLI may be
			// mid-append, or the window may have cut a line in half.
			continue
		}
		parsed = append(parsed, ev)
	}
	if len(parsed) > count {
		parsed = parsed[len(parsed)-count:]
	}
	return parsed
}

// First returns the first event of a session's log. Used by the process
// correlator, which only needs the session.start / session.resume line.
func (r *Reader) First(sessionID string) (Event, bool) {
	f, err := os.Open(r.eventsPath(sessionID))
	if err != nil {
		return Event{}, false
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if len(line) == 0 && err != nil {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(line), &ev); err != nil {
		return Event{}, false
	}
	return ev, true
}

// tailLines reads up to bufSize bytes from the end of path and splits them
// into trimmed, non-empty lines. When the read did not start at the
// beginning of the file the first line is a truncated fragment and is
// discarded.
func (r *Reader) tailLines(path string, bufSize int) ([][]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, false
	}
	readFrom := info.Size() - int64(bufSize)
	if readFrom < 0 {
		readFrom = 0
	}
	if _, err := f.Seek(readFrom, io.SeekStart); err != nil {
		return nil, false
	}
	chunk, err := io.ReadAll(f)
	if err != nil {
		return nil, false
	}

	raw := bytes.Split(chunk, []byte{'\n'})
	lines := make([][]byte, 0, len(raw))
	for _, l := range raw {
		l = bytes.TrimSpace(l)
		if len(l) > 0 {
			lines = append(lines, l)
		}
	}
	if readFrom > 0 && len(lines) > 0 {
		lines = lines[1:]
	}
	return lines, true
}
