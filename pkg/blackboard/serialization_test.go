package blackboard

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
)

// TestPreferencesRoundTrip tests that preferences survive a trip through a Redis hash
func TestPreferencesRoundTrip(t *testing.T) {
	original := Preferences{
		Language:  "pt-BR",
		Verbosity: "quiet",
		Muted:     []string{"upsell", "tips"},
	}

	hash, err := PreferencesToHash(original)
	if err != nil {
		t.Fatalf("PreferencesToHash failed: %v", err)
	}

	result, err := HashToPreferences(toStringHash(hash))
	if err != nil {
		t.Fatalf("HashToPreferences failed: %v", err)
	}

	if !reflect.DeepEqual(original, result) {
		t.Errorf("round-trip failed:\noriginal: %+v\nresult:   %+v", original, result)
	}
}

func TestPreferencesRoundTrip_NoMuted(t *testing.T) {
	hash, err := PreferencesToHash(Preferences{Language: "en"})
	if err != nil {
		t.Fatalf("PreferencesToHash failed: %v", err)
	}
	if hash["muted"] != "[]" {
		t.Errorf("expected muted to encode as [], got %v", hash["muted"])
	}

	result, err := HashToPreferences(toStringHash(hash))
	if err != nil {
		t.Fatalf("HashToPreferences failed: %v", err)
	}
	if result.Muted != nil {
		t.Errorf("expected nil muted, got %v", result.Muted)
	}
}

func TestHashToPreferences_InvalidMuted(t *testing.T) {
	_, err := HashToPreferences(map[string]string{"muted": "not-json"})
	if err == nil {
		t.Error("expected error for invalid muted JSON")
	}
}

func TestDecodeRawEvent(t *testing.T) {
	ev, err := DecodeRawEvent([]byte(`{"type":"calc:completed","payload":{"margemLucro":3,"kind":"pricing"},"priority":7}`))
	if err != nil {
		t.Fatalf("DecodeRawEvent failed: %v", err)
	}
	if ev.Type != "calc:completed" {
		t.Errorf("unexpected type %q", ev.Type)
	}
	if n, ok := ev.Payload["margemLucro"].(json.Number); !ok || n.String() != "3" {
		t.Errorf("expected json.Number 3, got %#v", ev.Payload["margemLucro"])
	}
	if ev.Priority == nil || *ev.Priority != 7 {
		t.Errorf("expected priority 7, got %v", ev.Priority)
	}

	for _, bad := range []string{`{"payload":{}}`, `{"type":"x","priority":42}`, `not json`} {
		if _, err := DecodeRawEvent([]byte(bad)); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}

// toStringHash simulates Redis storage, where every hash value is a string
func toStringHash(hash map[string]interface{}) map[string]string {
	out := make(map[string]string, len(hash))
	for k, v := range hash {
		out[k] = fmt.Sprint(v)
	}
	return out
}
