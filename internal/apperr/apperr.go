// Package apperr holds the error taxonomy shared by the generation pipeline and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth covers wrong password, unknown user and duplicate e-mail.
	ErrAuth = errors.New("authentication failed")
	// ErrStoreUnavailable means the database could not be reached or a query failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrGeneration wraps any failure returned by the language model API.
	ErrGeneration = errors.New("generation failed")
	// ErrParseAmbiguity marks a model response that did not carry the expected structure.
	ErrParseAmbiguity = errors.New("response structure not recognized")
	// ErrPaywall is returned when the user has no credits and no VIP entitlement.
	ErrPaywall = errors.New("no credits left")
)

// Kind is a coarse classification used for logging and status mapping.
type Kind string

const (
	KindNone        Kind = ""
	KindAuth        Kind = "auth_failure"
	KindStore       Kind = "store_unavailable"
	KindGeneration  Kind = "generation_failure"
	KindParse       Kind = "parse_ambiguity"
	KindPaywall     Kind = "paywall"
	KindUnspecified Kind = "internal"
)

// KindOf classifies err against the sentinels above.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrStoreUnavailable):
		return KindStore
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	case errors.Is(err, ErrParseAmbiguity):
		return KindParse
	case errors.Is(err, ErrPaywall):
		return KindPaywall
	default:
		return KindUnspecified
	}
}

// Unavailable wraps a driver error so that errors.Is(err, ErrStoreUnavailable) holds
// while the original cause stays reachable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Generation wraps a model API error.
func Generation(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrGeneration, err)
}
