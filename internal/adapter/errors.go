// Package adapter holds the error taxonomy shared by all platform adapters.
// The sync engine's retry policy branches on the error kind, so adapters
// classify failures instead of retrying internally.
package adapter

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind int

const (
	// KindTransient covers network failures, 5xx responses and rate
	// limiting; the caller may retry with backoff.
	KindTransient ErrorKind = iota
	// KindPermanent covers 4xx validation failures; retrying cannot help.
	KindPermanent
	// KindNotFound is a permanent error the caller may choose to treat as
	// success (delete of an already-absent entity).
	KindNotFound
	// KindAuth covers rejected credentials.
	KindAuth
)

type Error struct {
	Kind       ErrorKind
	Platform   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Platform, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

// FromStatus classifies an unexpected HTTP status into an adapter error.
func FromStatus(platform string, status int, message string) *Error {
	e := &Error{Platform: platform, StatusCode: status, Message: message}
	switch {
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind = KindTransient
	default:
		e.Kind = KindPermanent
	}
	return e
}

// Transient wraps a network-level failure.
func Transient(platform string, err error) *Error {
	return &Error{Kind: KindTransient, Platform: platform, Message: err.Error()}
}

func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	// Unclassified errors (timeouts, connection resets) are retryable.
	return true
}
