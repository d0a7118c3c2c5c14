package version

import (
	"strings"
	"testing"
)

func withBuildInfo(t *testing.T, v, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = v, commit, date
	t.Cleanup(func() {
		Version, GitCommit, BuildDate = origVersion, origCommit, origDate
	})
}

func TestBannerPlain(t *testing.T) {
	withBuildInfo(t, "1.2.3-rc.1", "", "")
	if got := Banner(false); got != "tracec 1.2.3-rc.1" {
		t.Fatalf("banner = %q", got)
	}
}

func TestBannerBuildInfo(t *testing.T) {
	withBuildInfo(t, "0.1.0", "abc123", "2026-01-15T10:30:00Z")
	want := "tracec 0.1.0\ncommit: abc123\nbuilt:  2026-01-15T10:30:00Z"
	if got := Banner(false); got != want {
		t.Fatalf("banner = %q", got)
	}
}

func TestBannerColored(t *testing.T) {
	withBuildInfo(t, "0.1.0-dev", "", "")
	got := Banner(true)
	if !strings.Contains(got, "\x1b[") || !strings.HasSuffix(got, "-dev") {
		t.Fatalf("banner = %q", got)
	}
}

func TestBannerShortVersion(t *testing.T) {
	withBuildInfo(t, "2", "", "")
	if got := Banner(false); got != "tracec 2" {
		t.Fatalf("banner = %q", got)
	}
}
