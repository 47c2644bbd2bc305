package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestIsNewer(t *testing.T) {
	tests := []struct {
		latest, current string
		expected        bool
	}{
		{"v1.0.0", "v0.9.9", true},
		{"v0.10.0", "v0.9.0", true},
		{"v0.1.10", "v0.1.9", true},
		{"1.2.0", "v1.1.0", true},
		{"v1.0.0", "v1.0.0", false},
		{"v1.0.0", "v1.0.1", false},
		{"v1.0.0", "v1.0.0-beta", true},
		{"v1.0.0-rc.2", "v1.0.0-rc.1", true},
		{"nightly", "v1.0.0", false},
	}
	for _, tt := range tests {
		if got := isNewer(tt.latest, tt.current); got != tt.expected {
			t.Errorf("isNewer(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.expected)
		}
	}
}

func TestIsDevelopmentVersion(t *testing.T) {
	for _, v := range []string{"", "dev", "devel", "unknown", "devel+abc123+dirty"} {
		if !IsDevelopmentVersion(v) {
			t.Errorf("IsDevelopmentVersion(%q) = false", v)
		}
	}
	if IsDevelopmentVersion("v1.2.3") {
		t.Error("IsDevelopmentVersion(v1.2.3) = true")
	}
}

func TestUpdateCommand(t *testing.T) {
	got := UpdateCommand("v1.2.3")
	if !strings.Contains(got, "github.com/marcus/agencysync@v1.2.3") {
		t.Errorf("UpdateCommand = %q", got)
	}
	if got := UpdateCommand("v1.3.0-rc.1"); !strings.HasSuffix(got, "@v1.3.0-rc.1") {
		t.Errorf("UpdateCommand(rc) = %q", got)
	}
	for _, bad := range []string{"v1.2.3; rm -rf /", "latest", "v1.2.3-", "v1.2", "1.2.3", "v1.2.3+dirty"} {
		if got := UpdateCommand(bad); got != "" {
			t.Errorf("UpdateCommand(%q) = %q, want empty", bad, got)
		}
	}
}

func TestIsCacheValid(t *testing.T) {
	now := time.Now()
	entry := &CacheEntry{LatestVersion: "v1.1.0", CurrentVersion: "v1.0.0", CheckedAt: now, HasUpdate: true}

	if !IsCacheValid(entry, "v1.0.0") {
		t.Error("fresh entry for same version should be valid")
	}
	if IsCacheValid(entry, "v1.1.0") {
		t.Error("entry for another version should be invalid")
	}
	if IsCacheValid(nil, "v1.0.0") {
		t.Error("nil entry should be invalid")
	}
	old := *entry
	old.CheckedAt = now.Add(-7 * time.Hour)
	if IsCacheValid(&old, "v1.0.0") {
		t.Error("expired entry should be invalid")
	}
	failed := CacheEntry{CurrentVersion: "v1.0.0", CheckedAt: now.Add(-time.Hour), Failed: true}
	if IsCacheValid(&failed, "v1.0.0") {
		t.Error("failed check should expire sooner than an answer")
	}
	failed.CheckedAt = now.Add(-10 * time.Minute)
	if !IsCacheValid(&failed, "v1.0.0") {
		t.Error("recent failed check should still be valid")
	}
}

// isolateCache points the user cache directory at a temp dir.
func isolateCache(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	t.Setenv("LocalAppData", dir)
}

func serveReleases(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	old := ReleaseURL
	ReleaseURL = srv.URL
	t.Cleanup(func() { ReleaseURL = old })
}

func TestSaveAndLoadCache(t *testing.T) {
	isolateCache(t)

	want := &CacheEntry{LatestVersion: "v1.2.3", CurrentVersion: "v1.0.0", CheckedAt: time.Now().Round(time.Second), HasUpdate: true}
	if err := SaveCache(want); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}
	got, err := LoadCache()
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if got.LatestVersion != want.LatestVersion || !got.CheckedAt.Equal(want.CheckedAt) || !got.HasUpdate {
		t.Errorf("LoadCache = %+v, want %+v", got, want)
	}
}

func TestCheck_AgainstReleaseServer(t *testing.T) {
	serveReleases(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name":"v1.4.0","html_url":"https://example.com/r/v1.4.0"}`))
	})

	res := Check(context.Background(), "v1.3.2")
	if res.Error != nil {
		t.Fatalf("Check: %v", res.Error)
	}
	if !res.HasUpdate || res.LatestVersion != "v1.4.0" {
		t.Errorf("Check = %+v", res)
	}

	// Development builds never hit the network.
	if res := Check(context.Background(), "dev"); res.LatestVersion != "" || res.Error != nil {
		t.Errorf("Check(dev) = %+v", res)
	}
}

func TestCheckAsync_UsesCache(t *testing.T) {
	isolateCache(t)
	serveReleases(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("fresh cache should not reach the release server")
	})
	if err := SaveCache(&CacheEntry{LatestVersion: "v1.5.0", CurrentVersion: "v1.0.0", CheckedAt: time.Now(), HasUpdate: true}); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}

	msg := CheckAsync("v1.0.0")()
	update, ok := msg.(UpdateAvailableMsg)
	if !ok {
		t.Fatalf("CheckAsync returned %T", msg)
	}
	if update.LatestVersion != "v1.5.0" || update.UpdateCommand == "" {
		t.Errorf("UpdateAvailableMsg = %+v", update)
	}
}

func TestCheckAsync_ConditionalRecheck(t *testing.T) {
	isolateCache(t)
	var sawETag string
	serveReleases(t, func(w http.ResponseWriter, r *http.Request) {
		sawETag = r.Header.Get("If-None-Match")
		w.WriteHeader(http.StatusNotModified)
	})
	stale := &CacheEntry{
		LatestVersion: "v2.1.0", ReleaseURL: "https://example.com/r/v2.1.0", CurrentVersion: "v2.0.0",
		CheckedAt: time.Now().Add(-8 * time.Hour), HasUpdate: true, ETag: `"abc"`,
	}
	if err := SaveCache(stale); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}

	msg, ok := CheckAsync("v2.0.0")().(UpdateAvailableMsg)
	if !ok || msg.LatestVersion != "v2.1.0" {
		t.Fatalf("CheckAsync = %+v", msg)
	}
	if sawETag != `"abc"` {
		t.Errorf("If-None-Match = %q", sawETag)
	}
	got, err := LoadCache()
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if !IsCacheValid(got, "v2.0.0") || got.ETag != `"abc"` {
		t.Errorf("cache after 304 = %+v", got)
	}
}

func TestCheckAsync_FailureIsCachedBriefly(t *testing.T) {
	isolateCache(t)
	var calls int
	serveReleases(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "rate limited", http.StatusForbidden)
	})

	if msg := CheckAsync("v1.0.0")(); msg != nil {
		t.Fatalf("CheckAsync = %#v, want nil", msg)
	}
	if msg := CheckAsync("v1.0.0")(); msg != nil {
		t.Fatalf("second CheckAsync = %#v, want nil", msg)
	}
	if calls != 1 {
		t.Errorf("release server called %d times, want 1", calls)
	}
	got, err := LoadCache()
	if err != nil {
		t.Fatalf("LoadCache: %v", err)
	}
	if !got.Failed {
		t.Errorf("cache = %+v, want failed", got)
	}
}
