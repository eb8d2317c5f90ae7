package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ContentHash digests the fields that matter for change detection. A mapping
// whose stored hash equals the current hash needs no outbound push.
func ContentHash(c *ContentRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s", c.Title, c.Body, c.Excerpt, c.Status, c.ContentType)
	return hex.EncodeToString(h.Sum(nil))
}
