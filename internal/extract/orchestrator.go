package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/loadlane/delivery-ocr-service/internal/models"
	"github.com/loadlane/delivery-ocr-service/internal/recognize"
)

// Tier identifies which rung of the fallback chain produced an attempt.
type Tier string

const (
	TierPrimary   Tier = "primary"   // remote structured recognition
	TierSecondary Tier = "secondary" // local engine + heuristic extraction
	TierTertiary  Tier = "tertiary"  // brute-force heuristic pass
)

// Attempt records one call to one source.
type Attempt struct {
	Tier     Tier
	Provider string
	Err      error
}

// Orchestrator runs the tiered extraction pipeline: remote recognition
// with retry and backoff, then local OCR plus heuristics, then a
// brute-force heuristic pass. Tiers run strictly in sequence; each one is
// only attempted when the previous one was insufficient. The orchestrator
// holds no state across calls, so concurrent documents need no locking.
type Orchestrator struct {
	remote recognize.Provider
	local  recognize.Provider

	heuristics *Extractor
	reconciler *Reconciler

	timeout     time.Duration
	maxAttempts int

	sleep func(time.Duration)
}

// NewOrchestrator wires the pipeline. local may be nil when no on-device
// engine is available; the remote raw text then feeds the heuristics.
func NewOrchestrator(remote, local recognize.Provider, heuristics *Extractor, cfg models.RecognitionConfig) *Orchestrator {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Orchestrator{
		remote:      remote,
		local:       local,
		heuristics:  heuristics,
		reconciler:  NewReconciler(),
		timeout:     timeout,
		maxAttempts: maxAttempts,
		sleep:       time.Sleep,
	}
}

// Extract turns one document image into a normalized FieldSet plus the
// recognized text it was derived from, for persistence alongside the
// fields. Ordinary recognition failure degrades tier by tier and never
// errors; the only errors are caller misuse (no image) and
// ErrExtractionUnavailable when no tier could obtain any text or fields
// at all.
func (o *Orchestrator) Extract(ctx context.Context, image []byte) (*models.FieldSet, string, error) {
	if len(image) == 0 {
		return nil, "", ErrNoImage
	}

	attempts := make([]Attempt, 0, o.maxAttempts+2)

	// Primary tier: remote structured recognition with bounded retries.
	primary, remoteText, primaryErr := o.runPrimary(ctx, image, &attempts)

	// Secondary tier: only when the primary is missing or came back
	// without either registration.
	var secondary *models.FieldSet
	var text string
	if primary == nil || !primary.HasRegistration() {
		var confidence float64
		text, confidence = o.recognizeText(ctx, image, remoteText, &attempts)
		if strings.TrimSpace(text) != "" {
			secondary = o.heuristics.Extract(text)
			secondary.Confidence = confidence
		}
	}

	if primary == nil && strings.TrimSpace(text) == "" {
		logAttempts(attempts)
		if primaryErr != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrExtractionUnavailable, primaryErr)
		}
		return nil, "", ErrExtractionUnavailable
	}

	merged := o.reconciler.Merge(primary, secondary)

	// Tertiary tier: brute-force registration recovery over the same text.
	if !merged.HasRegistration() && strings.TrimSpace(text) != "" {
		tertiary := o.heuristics.ExtractBruteForce(text)
		attempts = append(attempts, Attempt{Tier: TierTertiary, Provider: "heuristics"})
		merged = o.reconciler.Merge(merged, tertiary)
	}

	if strings.TrimSpace(text) == "" {
		text = remoteText
	}

	logAttempts(attempts)
	return merged, text, nil
}

// runPrimary calls the remote provider with a per-attempt timeout,
// retrying with exponential backoff. It returns the parsed candidate and
// whatever raw text the remote response carried.
func (o *Orchestrator) runPrimary(ctx context.Context, image []byte, attempts *[]Attempt) (*models.FieldSet, string, error) {
	if o.remote == nil {
		return nil, "", ErrRemoteUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
		raw, err := o.remote.Recognize(attemptCtx, image)
		cancel()

		if err == nil {
			*attempts = append(*attempts, Attempt{Tier: TierPrimary, Provider: o.remote.Name()})
			return fieldSetFromStructured(raw), raw.Text, nil
		}

		lastErr = err
		if errors.Is(err, recognize.ErrMalformedBody) {
			lastErr = fmt.Errorf("%w: %v", ErrMalformedRemoteBody, err)
		}
		*attempts = append(*attempts, Attempt{Tier: TierPrimary, Provider: o.remote.Name(), Err: err})
		log.Printf("[Extract] primary attempt %d/%d failed: %v", attempt, o.maxAttempts, err)

		if ctx.Err() != nil {
			break
		}
		if attempt < o.maxAttempts {
			o.sleep(time.Duration(1<<attempt) * time.Second)
		}
	}

	return nil, "", fmt.Errorf("%w: %v", ErrRemoteUnavailable, lastErr)
}

// recognizeText obtains the text block the heuristic tiers work on:
// the local engine's output, or failing that the remote raw text (which
// carries no quality signal, so its confidence stays zero).
func (o *Orchestrator) recognizeText(ctx context.Context, image []byte, remoteText string, attempts *[]Attempt) (string, float64) {
	if o.local != nil {
		raw, err := o.local.Recognize(ctx, image)
		switch {
		case err != nil:
			*attempts = append(*attempts, Attempt{Tier: TierSecondary, Provider: o.local.Name(), Err: err})
			log.Printf("[Extract] local recognition failed: %v", err)
		case strings.TrimSpace(raw.Text) == "":
			*attempts = append(*attempts, Attempt{Tier: TierSecondary, Provider: o.local.Name(), Err: ErrNoTextRecognized})
		default:
			*attempts = append(*attempts, Attempt{Tier: TierSecondary, Provider: o.local.Name()})
			return raw.Text, raw.Confidence
		}
	}

	if strings.TrimSpace(remoteText) != "" {
		*attempts = append(*attempts, Attempt{Tier: TierSecondary, Provider: "remote raw text"})
		return remoteText, 0
	}
	return "", 0
}

// fieldSetFromStructured maps a structured RawResult onto a candidate
// field set. Remote results carry no odometer or timestamp fields; those
// are recovered from raw text by the heuristic tiers when needed.
func fieldSetFromStructured(raw *models.RawResult) *models.FieldSet {
	fs := &models.FieldSet{
		Sender:     raw.Fields["sender"],
		Receiver:   raw.Fields["receiver"],
		Date:       raw.Fields["date"],
		TruckReg:   raw.Fields["truckReg"],
		TrailerReg: raw.Fields["trailerReg"],
		Table:      raw.Table,
	}
	if fs.Table == nil {
		fs.Table = []models.LineItem{}
	}
	return fs
}

func logAttempts(attempts []Attempt) {
	for _, a := range attempts {
		if a.Err != nil {
			log.Printf("[Extract] %s tier via %s: %v", a.Tier, a.Provider, a.Err)
		} else {
			log.Printf("[Extract] %s tier via %s: ok", a.Tier, a.Provider)
		}
	}
}
