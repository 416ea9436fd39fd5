package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCurrentVersion(t *testing.T) {
	assert.Equal(t, DevVersion, GetCurrentVersion("dev"))
	assert.Equal(t, DevVersion, GetCurrentVersion("demo"))
	assert.Equal(t, Version, GetCurrentVersion("prod"))
}

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	tests := []struct {
		version string
		target  string
		want    bool
	}{
		{"0.2.0", "0.1.9", true},
		{"0.1.0", "0.1.0", true},
		{"0.1.0", "0.10.0", false},
		{"1.0.0-rc.1", "1.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.version+">="+tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, IsVersionGreaterOrEqualThan(tt.version, tt.target))
		})
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("0.1.0"))
	assert.True(t, IsValid(DevVersion))
	assert.False(t, IsValid("v0.1.0"))
	assert.False(t, IsValid("latest"))
}

func TestStringWithCommit(t *testing.T) {
	saved := GitCommit
	defer func() { GitCommit = saved }()

	GitCommit = "unknown"
	assert.Equal(t, Version, String())
	assert.Empty(t, GetInfo("prod").Commit)

	GitCommit = "0123456789abcdef"
	assert.Equal(t, Version+"-01234567", String())
	assert.Equal(t, "01234567", GetInfo("prod").Commit)
}
