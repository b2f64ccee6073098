package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/mattermost-plugin-sbmq/server/backend"
)

// Severity classifies a monitoring notification.
type Severity string

const (
	SeverityFatal     Severity = "fatal"
	SeverityError     Severity = "error"
	SeverityWarning   Severity = "warning"
	SeverityRecovered Severity = "recovered"
)

// Severity colors
const (
	ColorFatal     = "#8B0000" // Dark red
	ColorError     = "#FF0000" // Red 🔴
	ColorWarning   = "#FF9900" // Orange 🟠
	ColorRecovered = "#2EB67D" // Green 🟢
	ColorUnknown   = "#808080" // Gray ⚪
)

// Severity emojis
const (
	EmojiFatal     = "⛔"
	EmojiError     = "🔴"
	EmojiWarning   = "🟠"
	EmojiRecovered = "🟢"
	EmojiUnknown   = "⚪"
)

const maxDetailLength = 500

// Notification is a monitoring event worth telling a channel about.
type Notification struct {
	Severity   Severity
	ServiceBus string
	Message    string
	Detail     string
	Failures   int
	Time       time.Time

	// Topics become hashtags on the post (service bus, queue type, queues)
	Topics []string
}

// FormatNotification converts a Notification into a Mattermost SlackAttachment
// colored by severity.
func FormatNotification(n Notification) *model.SlackAttachment {
	attachment := &model.SlackAttachment{
		Text:     fmt.Sprintf("#### %s %s", getSeverityEmoji(n.Severity), n.Message),
		Color:    getSeverityColor(n.Severity),
		Fallback: n.Message,
	}

	fields := []*model.SlackAttachmentField{
		{
			Title: "Time",
			Value: formatTime(n.Time),
			Short: true,
		},
	}

	if n.Failures > 0 {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Consecutive Failures",
			Value: fmt.Sprintf("%d", n.Failures),
			Short: true,
		})
	}

	if n.Detail != "" {
		fields = append(fields, &model.SlackAttachmentField{
			Title: "Details",
			Value: truncateText(n.Detail, maxDetailLength),
			Short: false,
		})
	}

	attachment.Fields = fields
	attachment.Footer = fmt.Sprintf("%s | %s", n.ServiceBus, n.Severity)

	return attachment
}

// FormatItemSummary renders unprocessed counts per category as a bulleted list,
// skipping categories that are not watched.
func FormatItemSummary(counts map[backend.Category]uint32) string {
	var lines []string
	for _, category := range backend.Categories {
		count, ok := counts[category]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %d", category, count))
	}

	if len(lines) == 0 {
		return "No categories are being watched."
	}

	return formatBulletList(lines)
}

func getSeverityColor(severity Severity) string {
	switch severity {
	case SeverityFatal:
		return ColorFatal
	case SeverityError:
		return ColorError
	case SeverityWarning:
		return ColorWarning
	case SeverityRecovered:
		return ColorRecovered
	default:
		return ColorUnknown
	}
}

func getSeverityEmoji(severity Severity) string {
	switch severity {
	case SeverityFatal:
		return EmojiFatal
	case SeverityError:
		return EmojiError
	case SeverityWarning:
		return EmojiWarning
	case SeverityRecovered:
		return EmojiRecovered
	default:
		return EmojiUnknown
	}
}

// formatTime formats a time.Time to a readable string
func formatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05 MST")
}

// formatBulletList formats a slice of strings as a bulleted list
func formatBulletList(items []string) string {
	bullets := make([]string, len(items))
	for i, item := range items {
		bullets[i] = fmt.Sprintf("• %s", item)
	}
	return strings.Join(bullets, "\n")
}

// truncateText truncates text to maxLen characters, adding "..." if truncated
func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
