package service

import (
	"strings"

	"pubsync/internal/domain"
)

// Per-platform character limits for derived post text.
var postCharLimits = map[domain.Platform]int{
	domain.PlatformLinkedIn: 3000,
}

const defaultCharLimit = 5000

// shapePayload turns canonical content into a platform-shaped post payload:
// title, excerpt (or leading body text), and an optional link, truncated to
// the platform's character limit.
func shapePayload(platform domain.Platform, content *domain.ContentRecord, link string) domain.PostPayload {
	limit, ok := postCharLimits[platform]
	if !ok {
		limit = defaultCharLimit
	}

	summary := content.Excerpt
	if summary == "" {
		summary = content.Body
	}

	var b strings.Builder
	b.WriteString(content.Title)
	if summary != "" {
		b.WriteString("\n\n")
		b.WriteString(summary)
	}
	text := b.String()

	// Reserve room for the trailing link before truncating.
	reserved := 0
	if link != "" {
		reserved = len("\n\n") + len(link)
	}
	text = truncateRunes(text, limit-reserved)
	if link != "" {
		text += "\n\n" + link
	}

	return domain.PostPayload{
		Text:  text,
		Title: content.Title,
		Link:  link,
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	const ellipsis = "…"
	return string(runes[:limit-1]) + ellipsis
}
