package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/copilot-dashboard/backend/internal/config"
)

// Version is the dashboard release. Overridden at build time with
// -ldflags "-X github.com/copilot-dashboard/backend/internal/web.Version=...".
var Version = "0.4.0"

type VersionInfo struct {
	Current         string `json:"current"`
	Latest          string `json:"latest"`
	UpdateAvailable bool   `json:"update_available"`
}

// versionChecker asks the GitHub releases API for the latest tag, caching
// the answer so the frontend can poll freely.
type versionChecker struct {
	url     string
	ttl     time.Duration
	client  *http.Client
	mu      sync.Mutex
	cached  *VersionInfo
	checked time.Time
}

func newVersionChecker(cfg config.VersionConfig) *versionChecker {
	return &versionChecker{
		url:    cfg.ReleasesURL,
		ttl:    cfg.CacheTTL,
		client: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

func (v *versionChecker) Check() VersionInfo {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cached != nil && time.Since(v.checked) < v.ttl {
		return *v.cached
	}

	info := VersionInfo{Current: Version, Latest: Version}
	if latest, ok := v.fetchLatest(); ok {
		info.Latest = latest
		info.UpdateAvailable = versionLess(Version, latest)
	}
	// A failed fetch is cached too; no point hammering GitHub when offline.
	v.cached = &info
	v.checked = time.Now()
	return info
}

func (v *versionChecker) fetchLatest() (string, bool) {
	resp, err := v.client.Get(v.url)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", false
	}
	tag := strings.TrimPrefix(release.TagName, "v")
	if tag == "" {
		return "", false
	}
	return tag, true
}

// versionLess compares dotted numeric versions; non-numeric parts count
// as zero.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var an, bn int
		if i < len(as) {
			an, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bn, _ = strconv.Atoi(bs[i])
		}
		if an != bn {
			return an < bn
		}
	}
	return false
}
