package blackboard

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Serialization helpers for converting between Go structs and Redis values
//
// Redis stores data as string-to-string maps (hashes) and string lists. Slice
// fields are JSON-encoded into single hash fields; list entries are whole JSON
// documents.

// PreferencesToHash converts viewer preferences to a Redis hash format.
// The muted topic list is JSON-encoded.
func PreferencesToHash(p Preferences) (map[string]interface{}, error) {
	muted := p.Muted
	if muted == nil {
		muted = []string{}
	}
	mutedJSON, err := json.Marshal(muted)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal muted topics: %w", err)
	}

	return map[string]interface{}{
		"language":  p.Language,
		"verbosity": string(p.Verbosity),
		"muted":     string(mutedJSON),
	}, nil
}

// HashToPreferences converts a Redis hash back to viewer preferences.
func HashToPreferences(hash map[string]string) (Preferences, error) {
	var muted []string
	if raw := hash["muted"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &muted); err != nil {
			return Preferences{}, fmt.Errorf("failed to unmarshal muted: %w", err)
		}
	}
	if len(muted) == 0 {
		muted = nil
	}

	return Preferences{
		Language:  hash["language"],
		Verbosity: Verbosity(hash["verbosity"]),
		Muted:     muted,
	}, nil
}

// DecodeRawEvent parses a producer event. Numbers are kept as json.Number so
// integer payload values survive unchanged.
func DecodeRawEvent(data []byte) (RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var ev RawEvent
	if err := dec.Decode(&ev); err != nil {
		return RawEvent{}, fmt.Errorf("failed to decode raw event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return RawEvent{}, fmt.Errorf("invalid raw event: %w", err)
	}
	return ev, nil
}
