package hashtag

import (
	"strings"
	"unicode"
)

// extractTopicTags turns topics into hashtags.
//
// Queue names use separators Mattermost does not allow in hashtags, so every
// run of non alphanumeric characters becomes a word boundary:
//   - "Forq" -> #Forq
//   - "orders.errors" -> #OrdersErrors
//   - "billing-dead_letter" -> #BillingDeadLetter
//
// Tags that would not be indexed (too short, or starting with a digit) are dropped.
func extractTopicTags(topics []string) []string {
	if len(topics) == 0 {
		return nil
	}

	var allTags []string

	for _, topic := range topics {
		words := strings.FieldsFunc(topic, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})

		tag := camelCase(strings.Join(words, " "))
		if !indexable(tag) {
			continue
		}
		allTags = append(allTags, "#"+tag)
	}

	return allTags
}

// indexable reports whether Mattermost will treat #tag as a hashtag.
func indexable(tag string) bool {
	if len(tag) < minTagLength {
		return false
	}
	return unicode.IsLetter(rune(tag[0]))
}
