package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stamp(t *testing.T, version, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestStampedVersion(t *testing.T) {
	stamp(t, "v1.2.3", "0123456789abcdef", "2026-03-04T05:06:07Z")

	assert.Equal(t, "v1.2.3", GetVersion())
	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())
	assert.True(t, IsRelease())

	info := GetBuildInfo()
	assert.Equal(t, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), info.BuildTime)
	assert.Contains(t, GetDetailedVersion(), "Commit: 0123456789abcdef")
	assert.Contains(t, GetDetailedVersion(), "Built: 2026-03-04T05:06:07Z")
	assert.NotContains(t, GetDetailedVersion(), "development")
}

func TestDevelopmentBuildIsMarked(t *testing.T) {
	stamp(t, "dev", "unknown", "unknown")

	assert.False(t, IsRelease())
	assert.Contains(t, GetDetailedVersion(), "(development build)")
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		zero bool
	}{
		{"2026-01-02T03:04:05Z", false},
		{"2026-01-02T03:04:05", false},
		{"2026-01-02 03:04:05", false},
		{"unknown", true},
		{"", true},
		{"yesterday", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.zero, parseTime(tt.in).IsZero())
		})
	}
}
