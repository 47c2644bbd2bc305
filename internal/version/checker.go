package version

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// UpdateAvailableMsg tells the monitor a newer release exists.
type UpdateAvailableMsg struct {
	CurrentVersion string
	LatestVersion  string
	UpdateCommand  string
}

// CheckAsync returns a command that resolves the release check from the
// cache when it can, and from GitHub otherwise. It yields nil when there is
// nothing to announce.
func CheckAsync(currentVersion string) tea.Cmd {
	return func() tea.Msg {
		if IsDevelopmentVersion(currentVersion) {
			return nil
		}
		cached, _ := LoadCache()
		if IsCacheValid(cached, currentVersion) {
			if cached.HasUpdate {
				return updateMsg(currentVersion, cached.LatestVersion)
			}
			return nil
		}

		var prev *CacheEntry
		if cached != nil && cached.CurrentVersion == currentVersion && cached.LatestVersion != "" {
			prev = cached
		}
		res := check(context.Background(), currentVersion, prev)

		entry := &CacheEntry{CurrentVersion: currentVersion, CheckedAt: time.Now()}
		if res.Error != nil {
			entry.Failed = true
			if prev != nil {
				// Keep the last good answer for the next conditional request.
				entry.LatestVersion, entry.ReleaseURL, entry.ETag = prev.LatestVersion, prev.ReleaseURL, prev.ETag
				entry.HasUpdate = prev.HasUpdate
			}
		} else {
			entry.LatestVersion = res.LatestVersion
			entry.ReleaseURL = res.UpdateURL
			entry.HasUpdate = res.HasUpdate
			entry.ETag = res.ETag
		}
		_ = SaveCache(entry)

		if res.HasUpdate {
			return updateMsg(currentVersion, res.LatestVersion)
		}
		return nil
	}
}

func updateMsg(current, latest string) UpdateAvailableMsg {
	return UpdateAvailableMsg{
		CurrentVersion: current,
		LatestVersion:  latest,
		UpdateCommand:  UpdateCommand(latest),
	}
}
