package service

import "errors"

var (
	// ErrUnknownSite means the webhook or push referenced a site that is
	// not configured.
	ErrUnknownSite = errors.New("unknown site")

	// ErrSignatureInvalid means the webhook body failed HMAC verification.
	// Never retried; nothing was parsed or mutated.
	ErrSignatureInvalid = errors.New("invalid webhook signature")

	ErrContentNotFound = errors.New("content record not found")

	// ErrTargetDisabled means the platform is not enabled in the record's
	// publishing options.
	ErrTargetDisabled = errors.New("target platform disabled for content")

	ErrNoAdapter = errors.New("no adapter configured for platform")

	ErrPostNotFound = errors.New("scheduled post not found")

	// ErrNotCancellable means the post already left the scheduled state.
	ErrNotCancellable = errors.New("post is not cancellable")

	// ErrNoSchedulingRule means no explicit time was given and the
	// platform has no default rule.
	ErrNoSchedulingRule = errors.New("no scheduling rule for platform")
)
