package output

import (
	"strings"
	"testing"
	"time"

	"github.com/marcus/agencysync/internal/models"
)

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()
	tests := []struct {
		at       time.Time
		expected string
	}{
		{now, "just now"},
		{now.Add(-59 * time.Second), "just now"},
		{now.Add(-2 * time.Minute), "2m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-2 * 24 * time.Hour), "2d ago"},
	}

	for _, tc := range tests {
		if got := FormatTimeAgo(tc.at); got != tc.expected {
			t.Errorf("FormatTimeAgo(%v) = %q, want %q", tc.at, got, tc.expected)
		}
	}
}

func TestFormatTimeAgoOld(t *testing.T) {
	old := time.Date(2025, 1, 2, 10, 0, 0, 0, time.Local)
	if got := FormatTimeAgo(old); got != "2025-01-02" {
		t.Errorf("FormatTimeAgo(old) = %q, want 2025-01-02", got)
	}
}

func TestFormatCounts_CanonicalOrder(t *testing.T) {
	got := FormatCounts(map[models.Collection]int{
		models.CollectionAdmins:    1,
		models.CollectionCustomers: 3,
		"policies":                 2,
		models.CollectionRequests:  0,
	})
	want := "customers=3 requests=0 admins=1 policies=2"
	if got != want {
		t.Errorf("FormatCounts = %q, want %q", got, want)
	}
}

func TestOnlineBadge(t *testing.T) {
	if got := OnlineBadge(true, false); !strings.Contains(got, "online") || strings.Contains(got, "forced") {
		t.Errorf("OnlineBadge(true,false) = %q", got)
	}
	if got := OnlineBadge(false, true); !strings.Contains(got, "offline") || !strings.Contains(got, "forced") {
		t.Errorf("OnlineBadge(false,true) = %q", got)
	}
}

func TestFormatPolicyStatus_Unknown(t *testing.T) {
	if got := FormatPolicyStatus("Lapsed"); got != "Lapsed" {
		t.Errorf("FormatPolicyStatus(Lapsed) = %q", got)
	}
}

func TestSectionHeader(t *testing.T) {
	if got := SectionHeader("queue"); got != "\nQUEUE:\n" {
		t.Errorf("SectionHeader = %q", got)
	}
}

func TestRenderMarkdownWithWidth(t *testing.T) {
	out, err := RenderMarkdownWithWidth("# Status\n\n- queue: **0**\n", 40)
	if err != nil {
		t.Fatalf("RenderMarkdownWithWidth: %v", err)
	}
	if !strings.Contains(out, "Status") || !strings.Contains(out, "queue") {
		t.Errorf("rendered output missing content: %q", out)
	}
}
