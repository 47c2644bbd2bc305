package version

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	// cacheTTL bounds how long a release answer is reused.
	cacheTTL = 6 * time.Hour
	// failureTTL is shorter: an offline instance retries within the hour,
	// not on every monitor start.
	failureTTL = 30 * time.Minute
)

// CacheEntry is the last release check.
type CacheEntry struct {
	LatestVersion  string    `json:"latest_version,omitempty"`
	ReleaseURL     string    `json:"release_url,omitempty"`
	CurrentVersion string    `json:"current_version"`
	CheckedAt      time.Time `json:"checked_at"`
	HasUpdate      bool      `json:"has_update"`
	ETag           string    `json:"etag,omitempty"`
	// Failed marks a check that could not reach GitHub.
	Failed bool `json:"failed,omitempty"`
}

func cachePath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agencysync", "release.json"), nil
}

// LoadCache reads the cached check.
func LoadCache() (*CacheEntry, error) {
	path, err := cachePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var e CacheEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SaveCache writes entry, creating the directory if needed.
func SaveCache(entry *CacheEntry) error {
	path, err := cachePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IsCacheValid reports whether entry still answers a check for
// currentVersion. An upgrade or downgrade since the check invalidates it.
func IsCacheValid(entry *CacheEntry, currentVersion string) bool {
	if entry == nil || entry.CurrentVersion != currentVersion {
		return false
	}
	ttl := cacheTTL
	if entry.Failed {
		ttl = failureTTL
	}
	return time.Since(entry.CheckedAt) < ttl
}
