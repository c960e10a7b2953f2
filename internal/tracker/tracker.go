package tracker

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/copilot-dashboard/backend/internal/config"
	"github.com/copilot-dashboard/backend/internal/events"
)

// Tracker correlates the OS process table with the Copilot CLI's on-disk
// session logs. It owns two caches: a TTL cache over the expensive process
// scan, and a permanent cache of event-derived data for sessions that are no
// longer running (their logs are immutable once the CLI stops writing).
//
// One Tracker instance serves the whole process; tests construct isolated
// instances with fake listers.
type Tracker struct {
	reader *events.Reader
	lister ProcessLister

	runningCacheTTL  time.Duration
	eventStaleness   time.Duration
	matchTolerance   time.Duration
	recentEventCount int
	maxAncestryDepth int

	binaryNames        map[string]bool
	terminalNames      map[string]bool
	terminalSubstrings []string

	// Running-sessions cache. The mutex is held across the entire refresh
	// (enumerate + classify) so concurrent callers during a miss share one
	// scan instead of each spawning their own.
	mu       sync.Mutex
	cached   map[string]*ProcessInfo
	cachedAt time.Time

	evMu      sync.Mutex
	eventData map[string]*events.EventData
}

func New(cfg *config.Config, reader *events.Reader, lister ProcessLister) *Tracker {
	t := &Tracker{
		reader:           reader,
		lister:           lister,
		runningCacheTTL:  cfg.Monitor.RunningCacheTTL,
		eventStaleness:   cfg.Monitor.EventStaleness,
		matchTolerance:   cfg.Monitor.MatchTolerance,
		recentEventCount: cfg.Monitor.RecentEventCount,
		maxAncestryDepth: cfg.Monitor.MaxAncestryDepth,
		binaryNames:      make(map[string]bool, len(cfg.Monitor.BinaryNames)),
		terminalNames:    make(map[string]bool, len(cfg.Terminals.Names)),
		eventData:        make(map[string]*events.EventData),
	}
	for _, n := range cfg.Monitor.BinaryNames {
		t.binaryNames[strings.ToLower(n)] = true
	}
	for _, n := range cfg.Terminals.Names {
		t.terminalNames[strings.ToLower(n)] = true
	}
	for _, s := range cfg.Terminals.Substrings {
		t.terminalSubstrings = append(t.terminalSubstrings, strings.ToLower(s))
	}
	return t
}

// RunningSessions returns the current sessionID → ProcessInfo mapping,
// refreshing at most once per TTL window. On a refresh failure the previous
// (stale) result is returned: availability over freshness. Callers must
// treat the returned map as read-only.
func (t *Tracker) RunningSessions() map[string]*ProcessInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.cachedAt) < t.runningCacheTTL && len(t.cached) > 0 {
		return t.cached
	}

	sessions, err := t.enumerate()
	if err != nil {
		log.Printf("Process scan failed, serving stale data: %v", err)
		return t.cached
	}

	for sid, info := range sessions {
		ss := t.ClassifyState(sid)
		info.State = ss.State
		info.WaitingContext = ss.WaitingContext
		info.BGTasks = ss.BGTasks
		info.BGTaskList = ss.BGTaskList
	}

	t.cached = sessions
	t.cachedAt = time.Now()
	return t.cached
}

// SessionEventData returns the event-derived metadata for a session.
// Running sessions are re-scanned on every call (the log is still growing)
// and get their branch refreshed from the working copy's .git/HEAD, since
// the branch recorded at session start may be stale. Non-running sessions
// are computed once and cached forever.
func (t *Tracker) SessionEventData(sessionID string, isRunning bool) *events.EventData {
	if !isRunning {
		t.evMu.Lock()
		if data, ok := t.eventData[sessionID]; ok {
			t.evMu.Unlock()
			return data
		}
		t.evMu.Unlock()
	}

	data := t.reader.ScanEventData(sessionID)

	if isRunning && data.Cwd != "" {
		if live := liveBranch(data.Cwd); live != "" {
			data.Branch = live
		}
	}

	if isRunning {
		// Never cached: the log may still be appended to.
		return &data
	}

	t.evMu.Lock()
	defer t.evMu.Unlock()
	// A concurrent caller may have inserted first; both computed the same
	// value from the same immutable log, so keep whichever landed.
	if existing, ok := t.eventData[sessionID]; ok {
		return existing
	}
	t.eventData[sessionID] = &data
	return &data
}

// matchProcessToSession correlates a process lacking --resume to a session
// by creation-time proximity: the first event of each session log carries
// the session.start timestamp, and the closest one within the tolerance
// window wins. O(sessions) per call, bounded by the cache TTL.
func (t *Tracker) matchProcessToSession(created time.Time) string {
	if created.IsZero() {
		return ""
	}

	best := ""
	bestDelta := t.matchTolerance
	for _, sid := range t.reader.SessionIDs() {
		ev, ok := t.reader.First(sid)
		if !ok || (ev.Type != "session.start" && ev.Type != "session.resume") {
			continue
		}
		ts, ok := ev.Time()
		if !ok {
			continue
		}
		delta := created.Sub(ts)
		if delta < 0 {
			delta = -delta
		}
		if delta < bestDelta {
			bestDelta = delta
			best = sid
		}
	}
	return best
}
