package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by tasks and pipelines. The worker maps these
// onto terminal task states: ErrCancelled becomes cancelled, every
// other error becomes failed with the (redacted) message.
var (
	ErrInputInvalid           = errors.New("input_invalid")
	ErrDependencyMissing      = errors.New("dependency_missing")
	ErrProviderUnavailable    = errors.New("provider_unavailable")
	ErrMediaProcessingFailure = errors.New("media_processing_failure")
	ErrCancelled              = errors.New("cancelled")
	ErrInternalInvariant      = errors.New("internal_invariant")
)

// InputInvalid wraps a validation failure.
func InputInvalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInputInvalid, fmt.Sprintf(format, args...))
}

// DependencyMissing wraps a missing external binary or SDK.
func DependencyMissing(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDependencyMissing, fmt.Sprintf(format, args...))
}

// ProviderUnavailable wraps an LM/TTS/ASR provider failure.
func ProviderUnavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProviderUnavailable, fmt.Sprintf(format, args...))
}

// MediaProcessingFailure wraps an ffmpeg failure that survived all
// documented fallbacks.
func MediaProcessingFailure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMediaProcessingFailure, fmt.Sprintf(format, args...))
}

// InternalInvariant wraps a violated post-condition.
func InternalInvariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternalInvariant, fmt.Sprintf(format, args...))
}

// IsCancelled reports whether err is (or wraps) a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
