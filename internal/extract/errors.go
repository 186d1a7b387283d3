package extract

import "errors"

var (
	// ErrNoImage indicates caller misuse: extraction was invoked without
	// an image. This is the only input error that is not degraded.
	ErrNoImage = errors.New("no image supplied")

	// ErrRemoteUnavailable covers network failures, timeouts and non-2xx
	// responses after all primary attempts. Recovered by falling through
	// to the next tier, never surfaced to the caller.
	ErrRemoteUnavailable = errors.New("remote recognition unavailable")

	// ErrMalformedRemoteBody means the structured response could not be
	// parsed or unwrapped. Treated exactly like ErrRemoteUnavailable.
	ErrMalformedRemoteBody = errors.New("malformed remote response body")

	// ErrNoTextRecognized means the local engine produced no usable text.
	// Recovered by returning whatever the other tiers found.
	ErrNoTextRecognized = errors.New("no text recognized")

	// ErrExtractionUnavailable is the one terminal failure: no tier could
	// obtain any text or fields at all. Callers message the user
	// distinctly from "nothing was found on the document".
	ErrExtractionUnavailable = errors.New("extraction unavailable")
)
