package blackboard

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func validEvent() *NormalizedEvent {
	return NewNormalizedEvent(NormalizedEvent{
		ID:             uuid.New().String(),
		Type:           "calc:completed",
		Category:       CategoryCalculation,
		Details:        CalculationDetails{Values: map[string]float64{"margemLucro": 3}},
		Timestamp:      time.Now(),
		Priority:       PriorityMedium,
		TargetAudience: AudienceUser,
		RelevanceScore: 0.6,
	}, map[string]any{"margemLucro": 3}, map[string]string{"screen": "quote"})
}

// TestRawEventValidate tests raw event boundary validation
func TestRawEventValidate(t *testing.T) {
	seven, eleven, negative := 7, 11, -1
	tests := []struct {
		name    string
		event   RawEvent
		wantErr bool
	}{
		{"valid", RawEvent{Type: "calc:completed"}, false},
		{"valid with priority", RawEvent{Type: "x", Priority: &seven}, false},
		{"empty type", RawEvent{}, true},
		{"priority too high", RawEvent{Type: "x", Priority: &eleven}, true},
		{"priority negative", RawEvent{Type: "x", Priority: &negative}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestNormalizedEventValidate_Valid tests that a well-formed event passes validation
func TestNormalizedEventValidate_Valid(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Errorf("valid event failed validation: %v", err)
	}
}

func TestNormalizedEventValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *NormalizedEvent)
	}{
		{"bad id", func(e *NormalizedEvent) { e.ID = "not-a-uuid" }},
		{"empty type", func(e *NormalizedEvent) { e.Type = "" }},
		{"bad category", func(e *NormalizedEvent) { e.Category = "weather" }},
		{"bad priority", func(e *NormalizedEvent) { e.Priority = "urgent" }},
		{"bad audience", func(e *NormalizedEvent) { e.TargetAudience = "everyone" }},
		{"relevance above one", func(e *NormalizedEvent) { e.RelevanceScore = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(e)
			if err := e.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// TestNormalizedEvent_CopyOnRead tests that accessors never expose internal maps
func TestNormalizedEvent_CopyOnRead(t *testing.T) {
	e := validEvent()

	p := e.Payload()
	p["margemLucro"] = 99
	if e.Payload()["margemLucro"] != 3 {
		t.Error("payload mutation leaked into event")
	}

	m := e.Metadata()
	m["screen"] = "other"
	if e.MetadataValue("screen") != "quote" {
		t.Error("metadata mutation leaked into event")
	}
}

func TestPriority_RankAndRaise(t *testing.T) {
	order := []Priority{PriorityBackground, PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	for i, p := range order {
		if p.Rank() != i {
			t.Errorf("%s.Rank() = %d, expected %d", p, p.Rank(), i)
		}
		if i < len(order)-1 && p.Raise() != order[i+1] {
			t.Errorf("%s.Raise() = %s, expected %s", p, p.Raise(), order[i+1])
		}
	}
	if PriorityCritical.Raise() != PriorityCritical {
		t.Error("critical should saturate")
	}
	if Priority("urgent").Validate() == nil {
		t.Error("unknown priority should fail validation")
	}
}

func TestSeverity_Downgrade(t *testing.T) {
	tests := []struct {
		in     Severity
		want   Severity
		wantOK bool
	}{
		{SeverityCritical, SeverityHigh, true},
		{SeverityHigh, SeverityMedium, true},
		{SeverityMedium, SeverityLow, true},
		{SeverityLow, SeverityLow, false},
		{SeverityInfo, SeverityInfo, false},
	}
	for _, tt := range tests {
		got, ok := tt.in.Downgrade()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("%s.Downgrade() = (%s, %v), expected (%s, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

// TestEnumValidate_Invalid tests that closed enums reject unknown values
func TestEnumValidate_Invalid(t *testing.T) {
	checks := map[string]error{
		"category":      Category("weather").Validate(),
		"audience":      Audience("everyone").Validate(),
		"decision type": DecisionType("maybe").Validate(),
		"message type":  MessageType("shout").Validate(),
		"severity":      Severity("meh").Validate(),
		"channel":       Channel("SMS").Validate(),
		"outcome":       Outcome("loved").Validate(),
	}
	for name, err := range checks {
		if err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestOutputRequestValidate(t *testing.T) {
	valid := OutputRequest{
		Type:     MessageWarning,
		Severity: SeverityHigh,
		Title:    "Margem crítica",
		Channel:  ChannelUser,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid request failed validation: %v", err)
	}

	empty := valid
	empty.Title = ""
	if err := empty.Validate(); err == nil {
		t.Error("request without title or message should fail")
	}

	badChannel := valid
	badChannel.Channel = "SMS"
	if err := badChannel.Validate(); err == nil {
		t.Error("request with unknown channel should fail")
	}
}

// TestIsValidUUID tests UUID validation helper
func TestIsValidUUID(t *testing.T) {
	if !isValidUUID(uuid.New().String()) {
		t.Error("generated UUID should be valid")
	}
	if isValidUUID("not-a-uuid") {
		t.Error("invalid UUID should not be valid")
	}
	if isValidUUID("") {
		t.Error("empty string should not be valid")
	}
}
