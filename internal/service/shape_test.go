package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"pubsync/internal/domain"
)

func TestShapePayload_TitleAndExcerpt(t *testing.T) {
	content := &domain.ContentRecord{
		Title:   "Release notes",
		Body:    "Full body text.",
		Excerpt: "Short summary.",
	}

	payload := shapePayload(domain.PlatformLinkedIn, content, "")

	assert.Equal(t, "Release notes\n\nShort summary.", payload.Text)
	assert.Equal(t, "Release notes", payload.Title)
}

func TestShapePayload_FallsBackToBody(t *testing.T) {
	content := &domain.ContentRecord{
		Title: "Release notes",
		Body:  "Full body text.",
	}

	payload := shapePayload(domain.PlatformLinkedIn, content, "")

	assert.Equal(t, "Release notes\n\nFull body text.", payload.Text)
}

func TestShapePayload_AppendsLink(t *testing.T) {
	content := &domain.ContentRecord{Title: "Release notes", Excerpt: "Summary."}

	payload := shapePayload(domain.PlatformLinkedIn, content, "https://example.com/p/1")

	assert.True(t, strings.HasSuffix(payload.Text, "\n\nhttps://example.com/p/1"))
	assert.Equal(t, "https://example.com/p/1", payload.Link)
}

func TestShapePayload_TruncatesToPlatformLimit(t *testing.T) {
	content := &domain.ContentRecord{
		Title: "Long one",
		Body:  strings.Repeat("x", 4000),
	}

	payload := shapePayload(domain.PlatformLinkedIn, content, "")

	assert.LessOrEqual(t, len([]rune(payload.Text)), 3000)
	assert.True(t, strings.HasSuffix(payload.Text, "…"))
}

func TestShapePayload_LinkSurvivesTruncation(t *testing.T) {
	link := "https://example.com/p/1"
	content := &domain.ContentRecord{
		Title: "Long one",
		Body:  strings.Repeat("x", 4000),
	}

	payload := shapePayload(domain.PlatformLinkedIn, content, link)

	assert.LessOrEqual(t, len([]rune(payload.Text)), 3000)
	assert.True(t, strings.HasSuffix(payload.Text, "\n\n"+link))
}
