package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

func TestFormatNotification_Error(t *testing.T) {
	n := Notification{
		Severity:   SeverityError,
		ServiceBus: "Forq 1.0 (SQLite)",
		Message:    "Failed to purge message",
		Detail:     "database is locked",
		Time:       time.Date(2025, 10, 30, 14, 30, 0, 0, time.UTC),
	}

	attachment := FormatNotification(n)

	assert.Equal(t, "#### 🔴 Failed to purge message", attachment.Text)
	assert.Equal(t, "Failed to purge message", attachment.Fallback)
	assert.Equal(t, ColorError, attachment.Color)
	assert.Equal(t, "Forq 1.0 (SQLite) | error", attachment.Footer)

	require.Len(t, attachment.Fields, 2)

	assert.Equal(t, "Time", attachment.Fields[0].Title)
	assert.Equal(t, "2025-10-30 14:30:00 UTC", attachment.Fields[0].Value)
	assert.Equal(t, model.SlackCompatibleBool(true), attachment.Fields[0].Short)

	assert.Equal(t, "Details", attachment.Fields[1].Title)
	assert.Equal(t, "database is locked", attachment.Fields[1].Value)
	assert.Equal(t, model.SlackCompatibleBool(false), attachment.Fields[1].Short)
}

func TestFormatNotification_Warning(t *testing.T) {
	n := Notification{
		Severity:   SeverityWarning,
		ServiceBus: "Memory 1.0 (InProcess)",
		Message:    "Service bus unreachable",
		Failures:   5,
		Time:       time.Date(2025, 10, 30, 14, 30, 0, 0, time.UTC),
	}

	attachment := FormatNotification(n)

	assert.Equal(t, ColorWarning, attachment.Color)
	require.Len(t, attachment.Fields, 2)
	assert.Equal(t, "Consecutive Failures", attachment.Fields[1].Title)
	assert.Equal(t, "5", attachment.Fields[1].Value)
}

func TestFormatNotification_Severities(t *testing.T) {
	tests := []struct {
		severity Severity
		color    string
		emoji    string
	}{
		{SeverityFatal, ColorFatal, EmojiFatal},
		{SeverityError, ColorError, EmojiError},
		{SeverityWarning, ColorWarning, EmojiWarning},
		{SeverityRecovered, ColorRecovered, EmojiRecovered},
		{Severity("other"), ColorUnknown, EmojiUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			attachment := FormatNotification(Notification{Severity: tt.severity, Message: "msg"})
			assert.Equal(t, tt.color, attachment.Color)
			assert.True(t, strings.HasPrefix(attachment.Text, "#### "+tt.emoji))
		})
	}
}

func TestFormatNotification_TruncatesDetail(t *testing.T) {
	attachment := FormatNotification(Notification{
		Severity: SeverityError,
		Message:  "msg",
		Detail:   strings.Repeat("x", 600),
	})

	require.Len(t, attachment.Fields, 2)
	assert.Len(t, attachment.Fields[1].Value, maxDetailLength+3)
	assert.True(t, strings.HasSuffix(attachment.Fields[1].Value.(string), "..."))
}

func TestFormatItemSummary(t *testing.T) {
	t.Run("watched categories in fetch order", func(t *testing.T) {
		summary := FormatItemSummary(map[backend.Category]uint32{
			backend.Error:   2,
			backend.Command: 5,
		})
		assert.Equal(t, "• Command: 5\n• Error: 2", summary)
	})

	t.Run("nothing watched", func(t *testing.T) {
		assert.Equal(t, "No categories are being watched.", FormatItemSummary(nil))
	})
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short", 10))
	assert.Equal(t, "abc...", truncateText("abcdef", 3))
}
