package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"post.updated"}`)
	secret := "shared-secret"

	t.Run("valid prefixed signature", func(t *testing.T) {
		assert.True(t, Verify(secret, Sign(secret, body), body))
	})

	t.Run("valid bare hex signature", func(t *testing.T) {
		bare := Sign(secret, body)[len("sha256="):]
		assert.True(t, Verify(secret, bare, body))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, Verify("other-secret", Sign(secret, body), body))
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := Sign(secret, body)
		assert.False(t, Verify(secret, sig, []byte(`{"event":"post.deleted"}`)))
	})

	t.Run("empty signature", func(t *testing.T) {
		assert.False(t, Verify(secret, "", body))
	})

	t.Run("empty secret never verifies", func(t *testing.T) {
		assert.False(t, Verify("", Sign("", body), body))
	})
}

func TestSign_Format(t *testing.T) {
	sig := Sign("secret", []byte("payload"))

	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
}
