package web

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/copilot-dashboard/backend/internal/config"
)

func TestVersionCheckerCachesResult(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"tag_name": "v99.0.0"}`))
	}))
	defer ts.Close()

	vc := newVersionChecker(config.VersionConfig{
		ReleasesURL:  ts.URL,
		CacheTTL:     time.Hour,
		FetchTimeout: time.Second,
	})

	first := vc.Check()
	second := vc.Check()
	if calls.Load() != 1 {
		t.Errorf("release endpoint hit %d times within TTL, want 1", calls.Load())
	}
	if !first.UpdateAvailable || first.Latest != "99.0.0" {
		t.Errorf("Check() = %+v", first)
	}
	if second != first {
		t.Errorf("cached result differs: %+v vs %+v", second, first)
	}
}

func TestVersionCheckerFetchFailure(t *testing.T) {
	vc := newVersionChecker(config.VersionConfig{
		ReleasesURL:  "http://127.0.0.1:1/releases",
		CacheTTL:     time.Hour,
		FetchTimeout: 200 * time.Millisecond,
	})

	info := vc.Check()
	if info.UpdateAvailable {
		t.Error("fetch failure must not report an update")
	}
	if info.Latest != info.Current {
		t.Errorf("Latest = %q, want current version on failure", info.Latest)
	}
}
