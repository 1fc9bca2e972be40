package version

import (
	"runtime/debug"
	"testing"
)

func TestString(t *testing.T) {
	// Save original values
	origTag := tag
	origCommit := commit
	origBuildTime := buildTime
	origBuildInfoReader := buildInfoReader

	// Restore original values after the test
	defer func() {
		tag = origTag
		commit = origCommit
		buildTime = origBuildTime
		buildInfoReader = origBuildInfoReader
	}()

	t.Run("with preset values", func(t *testing.T) {
		// Simulate ldflags setting all three values
		tag = "v1.0.0"
		commit = "abc123"
		buildTime = "2025-06-01"

		buildInfoReader = func() (*debug.BuildInfo, bool) {
			return nil, false
		}

		result := String()

		expected := "v1.0.0 (abc123) built at 2025-06-01\nhttps://github.com/opennutrition/opennutrition-mcp-server/releases/tag/v1.0.0"
		if result != expected {
			t.Errorf("Expected version string to be:\n%q\nbut got:\n%q", expected, result)
		}
	})

	t.Run("with mock build info", func(t *testing.T) {
		// Sentinel values so VCS info will override
		tag = "dev"
		commit = "123abc"
		buildTime = "now"

		buildInfoReader = func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "mock-commit-hash"},
					{Key: "vcs.time", Value: "mock-build-time"},
					{Key: "other.key", Value: "other-value"},
				},
			}, true
		}

		result := String()

		expected := "dev (mock-commit-hash) built at mock-build-time\nhttps://github.com/opennutrition/opennutrition-mcp-server/releases/tag/dev"
		if result != expected {
			t.Errorf("Expected version string to be:\n%q\nbut got:\n%q", expected, result)
		}
	})

	t.Run("with empty build info settings", func(t *testing.T) {
		tag = "dev"
		commit = "unchanged-commit"
		buildTime = "unchanged-date"

		buildInfoReader = func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{
				Settings: []debug.BuildSetting{},
			}, true
		}

		result := String()

		expected := "dev (unchanged-commit) built at unchanged-date\nhttps://github.com/opennutrition/opennutrition-mcp-server/releases/tag/dev"
		if result != expected {
			t.Errorf("Expected version string to be:\n%q\nbut got:\n%q", expected, result)
		}
	})

	t.Run("ldflags precedence over vcs", func(t *testing.T) {
		// Non-sentinel values simulate ldflags; VCS info must be ignored
		tag = "v2.0.0"
		commit = "ldflags-commit"
		buildTime = "ldflags-time"

		buildInfoReader = func() (*debug.BuildInfo, bool) {
			return &debug.BuildInfo{
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "vcs-commit-hash"},
					{Key: "vcs.time", Value: "vcs-build-time"},
				},
			}, true
		}

		result := String()

		expected := "v2.0.0 (ldflags-commit) built at ldflags-time\nhttps://github.com/opennutrition/opennutrition-mcp-server/releases/tag/v2.0.0"
		if result != expected {
			t.Errorf("Expected version string to be:\n%q\nbut got:\n%q", expected, result)
		}
	})
}

func TestTag(t *testing.T) {
	origTag := tag
	defer func() { tag = origTag }()

	tag = "v3.1.4"
	if Tag() != "v3.1.4" {
		t.Errorf("Expected Tag() to return %q, got %q", "v3.1.4", Tag())
	}
}
