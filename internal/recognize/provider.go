package recognize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

// ErrMalformedBody is returned when a structured provider response could
// not be parsed or unwrapped.
var ErrMalformedBody = errors.New("malformed structured response")

// Provider is a single recognition capability: given a document image it
// returns either a structured field bag (remote providers) or a free-form
// text block with a quality score (local engine).
type Provider interface {
	// Name returns the provider name
	Name() string

	// Recognize runs one recognition attempt over the image
	Recognize(ctx context.Context, image []byte) (*models.RawResult, error)
}

// structuredPayload is the JSON shape shared by every structured provider.
// Registration fields are accepted under both camelCase and snake_case
// since providers are not consistent about it.
type structuredPayload struct {
	Sender          string            `json:"sender"`
	Receiver        string            `json:"receiver"`
	Date            string            `json:"date"`
	TruckReg        string            `json:"truckReg"`
	TruckRegSnake   string            `json:"truck_reg"`
	TrailerReg      string            `json:"trailerReg"`
	TrailerRegSnake string            `json:"trailer_reg"`
	Table           []models.LineItem `json:"table"`
	RawText         string            `json:"raw_text"`
}

// decodeStructured parses a structured provider response body into a
// RawResult. Bodies are sometimes a JSON-encoded string wrapping the real
// object, so one extra decode step is applied when needed; markdown code
// fences from chat-style providers are stripped first.
func decodeStructured(body []byte) (*models.RawResult, error) {
	cleaned := strings.TrimSpace(string(body))
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response body", ErrMalformedBody)
	}

	// Unwrap one level of string-encoded JSON.
	if cleaned[0] == '"' {
		var inner string
		if err := json.Unmarshal([]byte(cleaned), &inner); err != nil {
			return nil, fmt.Errorf("%w: failed to unwrap string-encoded body: %v", ErrMalformedBody, err)
		}
		cleaned = strings.TrimSpace(inner)
	}

	var payload structuredPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	if payload.TruckReg == "" {
		payload.TruckReg = payload.TruckRegSnake
	}
	if payload.TrailerReg == "" {
		payload.TrailerReg = payload.TrailerRegSnake
	}

	fields := make(map[string]string)
	for key, value := range map[string]string{
		"sender":     payload.Sender,
		"receiver":   payload.Receiver,
		"date":       payload.Date,
		"truckReg":   payload.TruckReg,
		"trailerReg": payload.TrailerReg,
	} {
		if strings.TrimSpace(value) != "" {
			fields[key] = strings.TrimSpace(value)
		}
	}

	return &models.RawResult{
		Fields: fields,
		Table:  payload.Table,
		Text:   payload.RawText,
		Source: "remote",
	}, nil
}

// visionPrompt instructs a chat-style vision model to read a delivery slip
// and answer with the structured JSON every provider shares.
const visionPrompt = `You are an expert reader of photographed delivery and load documents (trip sheets, delivery slips), including handwritten entries.

Read the image carefully and extract:
- sender: the consignor (after a "SENDER:" label or in the dispatch block)
- receiver: the consignee (after a "RECEIVER:" label)
- date: document date as written
- truckReg: the truck registration plate (labels like "Truck Reg. No.:", "TRUCK NO:")
- trailerReg: the trailer registration plate
- table: load line items as [{"packages": "...", "description": "...", "gross": "...", "volume": "..."}]
- raw_text: every line of text you can read, in document order, one line per row

Rules:
1. NEVER invent values - use "" when you cannot read a field
2. Keep registration plates exactly as written, including spaces and hyphens
3. Handwritten odometer readings near the bottom of the page belong in raw_text
4. Answer with ONLY valid JSON, no markdown, no commentary

{"sender": "", "receiver": "", "date": "", "truckReg": "", "trailerReg": "", "table": [], "raw_text": ""}`
