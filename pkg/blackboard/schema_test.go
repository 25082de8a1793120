package blackboard

import (
	"strings"
	"testing"
	"time"
)

// TestPreferencesKey tests preferences key generation
func TestPreferencesKey(t *testing.T) {
	key := PreferencesKey("default-1", "u-42")

	expected := "hark:default-1:user:u-42:preferences"
	if key != expected {
		t.Errorf("PreferencesKey() = %q, expected %q", key, expected)
	}

	if !strings.HasPrefix(key, "hark:") {
		t.Error("preferences key should start with 'hark:'")
	}
}

func TestHistoryAndFeedbackKeys(t *testing.T) {
	if got := HistoryKey("prod", "u-1"); got != "hark:prod:user:u-1:history" {
		t.Errorf("HistoryKey() = %q", got)
	}
	if got := FeedbackKey("prod", "u-1"); got != "hark:prod:user:u-1:feedback" {
		t.Errorf("FeedbackKey() = %q", got)
	}
}

// TestMetricsKey tests that the day component is taken in UTC
func TestMetricsKey(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	day := time.Date(2026, 3, 2, 23, 30, 0, 0, loc) // 02:30 UTC on the 3rd

	key := MetricsKey("prod", "u-1", day)

	expected := "hark:prod:user:u-1:metrics:2026-03-03"
	if key != expected {
		t.Errorf("MetricsKey() = %q, expected %q", key, expected)
	}
}

func TestChannels(t *testing.T) {
	if got := EventsChannel("prod"); got != "hark:prod:events" {
		t.Errorf("EventsChannel() = %q", got)
	}
	if got := MessagesChannel("prod"); got != "hark:prod:messages" {
		t.Errorf("MessagesChannel() = %q", got)
	}
}

// TestKeyNamespacing verifies keys of different instances never collide
func TestKeyNamespacing(t *testing.T) {
	a := PreferencesKey("instance-a", "u")
	b := PreferencesKey("instance-b", "u")
	if a == b {
		t.Errorf("keys for different instances should differ, both are %q", a)
	}
}
