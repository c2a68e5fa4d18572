package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Class categorises an RPC failure for retry policy.
type Class string

const (
	// ClassTransient is presumed to resolve on retry: network trouble,
	// timeouts, overloaded or briefly unavailable service.
	ClassTransient Class = "transient"
	// ClassPermanent will not resolve on retry, e.g. an unsupported
	// language pair. Fail the batch immediately.
	ClassPermanent Class = "permanent"
)

// ErrUnsupportedPair is the canonical permanent failure.
type ErrUnsupportedPair struct {
	SourceLang string
	TargetLang string
}

func (e *ErrUnsupportedPair) Error() string {
	return fmt.Sprintf("translate: unsupported language pair %s→%s", e.SourceLang, e.TargetLang)
}

// ErrMalformedResult is returned when the boundary answers success but the
// result is not a same-length array. Deterministic, so permanent.
type ErrMalformedResult struct {
	Want int
	Got  int
}

func (e *ErrMalformedResult) Error() string {
	return fmt.Sprintf("translate: malformed result: want %d texts, got %d", e.Want, e.Got)
}

var transientSignatures = []string{
	"network", "timeout", "timed out", "connection", "econnreset",
	"connrefused", "unavailable", "temporarily", "overloaded",
	"too many requests", "rate limit", "429", "502", "503", "504",
}

var permanentSignatures = []string{
	"unsupported language", "unsupported pair", "invalid language",
	"language pair", "not supported", "bad request", "invalid request",
}

// Classify maps an error to its retry class. Typed errors win; otherwise
// the message is matched against known transient and permanent signatures.
// Unknown errors are treated as transient — the boundary's failure modes
// are dominated by network-shaped trouble.
func Classify(err error) Class {
	var unsupported *ErrUnsupportedPair
	if errors.As(err, &unsupported) {
		return ClassPermanent
	}
	var malformed *ErrMalformedResult
	if errors.As(err, &malformed) {
		return ClassPermanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range permanentSignatures {
		if strings.Contains(msg, sig) {
			return ClassPermanent
		}
	}
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return ClassTransient
		}
	}
	return ClassTransient
}
