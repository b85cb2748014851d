package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateID(t *testing.T) {
	id := GenerateID("test")
	assert.True(t, strings.HasPrefix(id, "test_"))
	assert.Len(t, id, len("test_")+16)
	assert.NotEqual(t, id, GenerateID("test"))
}

func TestGeneratePrefixedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateSessionID(), "session_"))
	assert.True(t, strings.HasPrefix(GenerateParticipantID(), "peer_"))
	assert.True(t, strings.HasPrefix(GenerateCameraID(), "cam_"))
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Front Camera", "Front Camera"},
		{"  padded  ", "padded"},
		{"with\x00control\x1bchars", "withcontrolchars"},
		{"tab\tinside", "tabinside"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeLabel(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Front Camera", "Front_Camera"},
		{"a/b\\c:d", "abcd"},
		{`quo"ted<>|`, "quoted"},
		{"///", "recording"},
		{"", "recording"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in), "input %q", tt.in)
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "exact", TruncateString("exact", 5))
	assert.Equal(t, "lon...", TruncateString("long-string", 6))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestEpochMillisRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	assert.True(t, FromEpochMillis(EpochMillis(now)).Equal(now))
}

func TestFileTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 45, 0, time.UTC)
	assert.Equal(t, "2024-03-15T09-30-45", FileTimestamp(ts))
}
