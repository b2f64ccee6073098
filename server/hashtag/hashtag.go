package hashtag

import (
	"strings"
)

// minTagLength is the shortest hashtag body Mattermost indexes.
const minTagLength = 3

// Generate creates the hashtag line posted with a notification, so channel
// members can search for every notification of one service bus or severity.
//
// Order of hashtags:
// 1. Severity (#Error, #Fatal, ...)
// 2. Topics (service bus, queue type, queue names), deduplicated
//
// Returns formatted string (e.g., "🏷️ #Error, #Forq, #SQLite, #OrdersErrors")
func Generate(severity string, topics []string) string {
	var allTags []string

	if tag := extractSeverityTag(severity); tag != "" {
		allTags = append(allTags, tag)
	}

	allTags = append(allTags, extractTopicTags(topics)...)

	// Deduplicate while preserving order
	uniqueTags := deduplicateTags(allTags)

	return formatHashtagText(uniqueTags)
}

// extractSeverityTag extracts hashtag from the notification severity.
func extractSeverityTag(severity string) string {
	clean := strings.TrimSpace(severity)
	if clean == "" {
		return ""
	}
	return "#" + strings.ToUpper(clean[:1]) + strings.ToLower(clean[1:])
}

// deduplicateTags removes duplicate tags (case-insensitive) while preserving order.
func deduplicateTags(tags []string) []string {
	seen := make(map[string]bool)
	var uniqueTags []string

	for _, tag := range tags {
		tagLower := strings.ToLower(tag)
		if !seen[tagLower] {
			uniqueTags = append(uniqueTags, tag)
			seen[tagLower] = true
		}
	}

	return uniqueTags
}

// formatHashtagText formats hashtags as comma-separated text with emoji prefix.
func formatHashtagText(tags []string) string {
	if len(tags) == 0 {
		return ""
	}

	return "🏷️ " + strings.Join(tags, ", ")
}

// camelCase converts text to CamelCase by capitalizing first letter of each word
// and removing spaces.
func camelCase(text string) string {
	words := strings.Fields(text)
	var result strings.Builder

	for _, word := range words {
		if len(word) > 0 {
			result.WriteString(strings.ToUpper(word[:1]))
			if len(word) > 1 {
				result.WriteString(word[1:])
			}
		}
	}

	return result.String()
}
