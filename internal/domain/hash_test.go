package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHash_StableAcrossIrrelevantFields(t *testing.T) {
	a := &ContentRecord{
		ID:          "content-1",
		Title:       "Title",
		Body:        "Body",
		Excerpt:     "Excerpt",
		Status:      ContentPublished,
		ContentType: "post",
	}
	b := &ContentRecord{
		ID:             "different-id",
		OrganizationID: "different-org",
		Title:          "Title",
		Body:           "Body",
		Excerpt:        "Excerpt",
		Status:         ContentPublished,
		ContentType:    "post",
	}

	assert.Equal(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_ChangesWithContent(t *testing.T) {
	base := &ContentRecord{Title: "Title", Body: "Body", Status: ContentDraft, ContentType: "post"}
	hash := ContentHash(base)

	edited := *base
	edited.Body = "Body edited"
	assert.NotEqual(t, hash, ContentHash(&edited))

	statusOnly := *base
	statusOnly.Status = ContentPublished
	assert.NotEqual(t, hash, ContentHash(&statusOnly))
}

func TestContentHash_FieldBoundaries(t *testing.T) {
	// Field separators must prevent adjacent fields from colliding.
	a := &ContentRecord{Title: "ab", Body: "c"}
	b := &ContentRecord{Title: "a", Body: "bc"}

	assert.NotEqual(t, ContentHash(a), ContentHash(b))
}
