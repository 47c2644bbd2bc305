// Package version tells an operator when a newer agencysync release exists.
// Instances often run without internet access, so checks are cheap to skip:
// answers are cached, failures too, and GitHub is asked conditionally.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const module = "github.com/marcus/agencysync"

// ReleaseURL is the endpoint Check queries. Tests point it elsewhere.
var ReleaseURL = "https://api.github.com/repos/marcus/agencysync/releases/latest"

const checkTimeout = 5 * time.Second

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckResult is the outcome of asking GitHub for the latest release.
type CheckResult struct {
	CurrentVersion string
	LatestVersion  string
	UpdateURL      string
	HasUpdate      bool
	// ETag identifies the answer for a later conditional request.
	ETag  string
	Error error
}

// Check fetches the latest release and compares it with currentVersion.
// Development builds never touch the network.
func Check(ctx context.Context, currentVersion string) CheckResult {
	return check(ctx, currentVersion, nil)
}

// check asks conditionally when prev carries an ETag; a 304 answers with
// prev's release.
func check(ctx context.Context, currentVersion string, prev *CacheEntry) CheckResult {
	res := CheckResult{CurrentVersion: currentVersion}
	if IsDevelopmentVersion(currentVersion) {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ReleaseURL, nil)
	if err != nil {
		res.Error = err
		return res
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if prev != nil && prev.ETag != "" && prev.LatestVersion != "" {
		req.Header.Set("If-None-Match", prev.ETag)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		res.Error = fmt.Errorf("release check: %w", err)
		return res
	}
	defer resp.Body.Close()

	var rel release
	switch {
	case resp.StatusCode == http.StatusNotModified && prev != nil:
		rel = release{TagName: prev.LatestVersion, HTMLURL: prev.ReleaseURL}
		res.ETag = prev.ETag
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
			res.Error = fmt.Errorf("release check: decode: %w", err)
			return res
		}
		res.ETag = resp.Header.Get("ETag")
	default:
		res.Error = fmt.Errorf("release check: github answered %s", resp.Status)
		return res
	}

	res.LatestVersion = rel.TagName
	res.UpdateURL = rel.HTMLURL
	res.HasUpdate = isNewer(rel.TagName, currentVersion)
	return res
}

// IsDevelopmentVersion reports whether v is a local build rather than a
// tagged release.
func IsDevelopmentVersion(v string) bool {
	switch v {
	case "", "unknown", "dev", "devel":
		return true
	}
	return strings.HasPrefix(v, "devel+")
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// isNewer reports whether latest sorts after current. A release is newer
// than a prerelease of the same version.
func isNewer(latest, current string) bool {
	l, c := canonical(latest), canonical(current)
	if !semver.IsValid(l) {
		return false
	}
	if !semver.IsValid(c) {
		return true
	}
	return semver.Compare(l, c) > 0
}

// UpdateCommand returns the go install line for version, or "" unless
// version is a complete tag. The result is printed for copy and paste, so
// nothing else may pass.
func UpdateCommand(version string) string {
	if !semver.IsValid(version) || semver.Canonical(version) != version {
		return ""
	}
	return fmt.Sprintf("go install -ldflags \"-X main.Version=%s\" %s@%s", version, module, version)
}
