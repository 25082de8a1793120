// Package blackboard provides type-safe Go definitions for the Hark decision
// pipeline and the shared state store every pipeline component reads from.
// Events, decisions and outgoing messages are defined here so that the
// perception, decision, output and learning packages share one vocabulary.
package blackboard

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawEvent is a producer-supplied event before perception.
// Payload is untyped; perception decodes it into a category-specific Details variant.
type RawEvent struct {
	Type      string            `json:"type"`               // Event type, e.g. "calc:completed"
	Payload   map[string]any    `json:"payload,omitempty"`  // Producer payload
	Timestamp time.Time         `json:"timestamp"`          // Zero means "now" at ingress
	Source    string            `json:"source,omitempty"`   // Producing component
	Priority  *int              `json:"priority,omitempty"` // Optional explicit priority 0-10
	Metadata  map[string]string `json:"metadata,omitempty"` // Free-form producer metadata
}

// Validate checks that the raw event carries the minimum fields perception needs.
func (e *RawEvent) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}

	if e.Priority != nil && (*e.Priority < 0 || *e.Priority > 10) {
		return fmt.Errorf("invalid explicit priority: must be 0-10, got %d", *e.Priority)
	}

	return nil
}

// Category classifies a normalized event.
type Category string

const (
	CategoryCalculation Category = "calculation"
	CategoryNavigation  Category = "navigation"
	CategoryInteraction Category = "interaction"
	CategoryInsight     Category = "insight"
	CategoryAlert       Category = "alert"
	CategoryGovernance  Category = "governance"
	CategorySystem      Category = "system"
	CategoryAI          Category = "ai"
	CategoryError       Category = "error"
)

// Validate checks if the Category is a valid enum value.
func (c Category) Validate() error {
	switch c {
	case CategoryCalculation, CategoryNavigation, CategoryInteraction, CategoryInsight,
		CategoryAlert, CategoryGovernance, CategorySystem, CategoryAI, CategoryError:
		return nil
	default:
		return fmt.Errorf("unknown category: %q", c)
	}
}

// Priority is the urgency of a normalized event.
type Priority string

const (
	PriorityCritical   Priority = "critical"
	PriorityHigh       Priority = "high"
	PriorityMedium     Priority = "medium"
	PriorityLow        Priority = "low"
	PriorityBackground Priority = "background"
)

// Rank orders priorities: critical=4 down to background=0. Unknown values rank -1.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	case PriorityBackground:
		return 0
	default:
		return -1
	}
}

// Raise returns the priority one level above p, saturating at critical.
func (p Priority) Raise() Priority {
	switch p {
	case PriorityBackground:
		return PriorityLow
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// Validate checks if the Priority is a valid enum value.
func (p Priority) Validate() error {
	if p.Rank() < 0 {
		return fmt.Errorf("unknown priority: %q", p)
	}
	return nil
}

// Audience is who an event is meant for.
type Audience string

const (
	AudienceAdmin  Audience = "admin"
	AudienceUser   Audience = "user"
	AudienceSystem Audience = "system"
)

// Validate checks if the Audience is a valid enum value.
func (a Audience) Validate() error {
	switch a {
	case AudienceAdmin, AudienceUser, AudienceSystem:
		return nil
	default:
		return fmt.Errorf("unknown audience: %q", a)
	}
}

// Role is the viewer's role. It shares values with Audience so the two can be compared.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// NormalizedEvent is a raw event enriched by perception.
// It is created once and must not be mutated afterwards; use the accessor
// methods which hand out copies of the maps.
type NormalizedEvent struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Category       Category          `json:"category"`
	Details        Details           `json:"-"` // Category-specific typed view of the payload
	Timestamp      time.Time         `json:"timestamp"`
	Source         string            `json:"source,omitempty"`
	Priority       Priority          `json:"priority"`
	TargetAudience Audience          `json:"target_audience"`
	RelevanceScore float64           `json:"relevance_score"`
	Raw            RawEvent          `json:"-"` // Original event, used for re-injection on schedule
	payload        map[string]any    // unexported so downstream code cannot mutate it
	metadata       map[string]string // unexported so downstream code cannot mutate it
}

// NewNormalizedEvent builds a normalized event, copying payload and metadata.
func NewNormalizedEvent(ev NormalizedEvent, payload map[string]any, metadata map[string]string) *NormalizedEvent {
	ev.payload = copyAnyMap(payload)
	ev.metadata = copyStringMap(metadata)
	return &ev
}

// Payload returns a copy of the event payload.
func (e *NormalizedEvent) Payload() map[string]any {
	return copyAnyMap(e.payload)
}

// Metadata returns a copy of the event metadata.
func (e *NormalizedEvent) Metadata() map[string]string {
	return copyStringMap(e.metadata)
}

// MetadataValue returns a single metadata value.
func (e *NormalizedEvent) MetadataValue(key string) string {
	return e.metadata[key]
}

// Validate checks the normalized event invariants.
func (e *NormalizedEvent) Validate() error {
	if !isValidUUID(e.ID) {
		return fmt.Errorf("invalid event ID: not a valid UUID")
	}
	if e.Type == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if err := e.Category.Validate(); err != nil {
		return fmt.Errorf("invalid category: %w", err)
	}
	if err := e.Priority.Validate(); err != nil {
		return fmt.Errorf("invalid priority: %w", err)
	}
	if err := e.TargetAudience.Validate(); err != nil {
		return fmt.Errorf("invalid target audience: %w", err)
	}
	if e.RelevanceScore < 0 || e.RelevanceScore > 1 {
		return fmt.Errorf("invalid relevance score: must be in [0,1], got %f", e.RelevanceScore)
	}
	return nil
}

// Details is the typed view of an event payload. Exactly one concrete type
// exists per category family; see the perception package for decoding.
type Details interface {
	isDetails()
}

// CalculationDetails carries the numeric results of a business calculation.
type CalculationDetails struct {
	Kind   string             // e.g. "pricing", "tax"; empty when the producer omits it
	Values map[string]float64 // Every numeric payload field
}

// NavigationDetails describes a screen change.
type NavigationDetails struct {
	From string
	To   string
}

// AlertDetails carries an alert or error message.
type AlertDetails struct {
	Severity string
	Message  string
	Code     string
}

// GenericDetails is used by categories without required fields.
type GenericDetails struct {
	Text string
}

func (CalculationDetails) isDetails() {}
func (NavigationDetails) isDetails()  {}
func (AlertDetails) isDetails()       {}
func (GenericDetails) isDetails()     {}

// DecisionType is the verdict produced for a normalized event.
type DecisionType string

const (
	DecisionEmit     DecisionType = "emit"
	DecisionSuggest  DecisionType = "suggest"
	DecisionExecute  DecisionType = "execute"
	DecisionSchedule DecisionType = "schedule"
	DecisionEscalate DecisionType = "escalate"
	DecisionSilence  DecisionType = "silence"
	DecisionDelegate DecisionType = "delegate"
)

// Validate checks if the DecisionType is a valid enum value.
func (d DecisionType) Validate() error {
	switch d {
	case DecisionEmit, DecisionSuggest, DecisionExecute, DecisionSchedule,
		DecisionEscalate, DecisionSilence, DecisionDelegate:
		return nil
	default:
		return fmt.Errorf("unknown decision type: %q", d)
	}
}

// Decision is produced exactly once per normalized event by the first matching rule.
type Decision struct {
	Type       DecisionType     `json:"type"`
	Reason     string           `json:"reason"`
	Confidence float64          `json:"confidence"` // [0,1]
	Payload    *DecisionPayload `json:"payload,omitempty"`
	ShouldLog  bool             `json:"should_log"`
	RuleID     string           `json:"rule_id,omitempty"` // Rule that produced the decision
}

// DecisionPayload carries the optional artefacts a decision hands to the executor.
type DecisionPayload struct {
	OutputRequest *OutputRequest `json:"output_request,omitempty"`
	AgentRequest  *AgentRequest  `json:"agent_request,omitempty"`
	ScheduleAt    time.Time      `json:"schedule_at,omitempty"`
}

// AgentRequest asks the language-model collaborator to analyse an event.
type AgentRequest struct {
	Prompt string            `json:"prompt"`
	Hints  map[string]string `json:"hints,omitempty"`
}

// MessageType is the presentation type of an outgoing message.
type MessageType string

const (
	MessageInfo       MessageType = "info"
	MessageSuggestion MessageType = "suggestion"
	MessageWarning    MessageType = "warning"
	MessageAlert      MessageType = "alert"
	MessageSuccess    MessageType = "success"
	MessageInsight    MessageType = "insight"
)

// Validate checks if the MessageType is a valid enum value.
func (m MessageType) Validate() error {
	switch m {
	case MessageInfo, MessageSuggestion, MessageWarning, MessageAlert, MessageSuccess, MessageInsight:
		return nil
	default:
		return fmt.Errorf("unknown message type: %q", m)
	}
}

// Severity is the urgency of an outgoing message.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Downgrade returns the severity one step lower. ok is false when s is already
// at the lowest step (low or info) and cannot be downgraded.
func (s Severity) Downgrade() (next Severity, ok bool) {
	switch s {
	case SeverityCritical:
		return SeverityHigh, true
	case SeverityHigh:
		return SeverityMedium, true
	case SeverityMedium:
		return SeverityLow, true
	default:
		return s, false
	}
}

// Validate checks if the Severity is a valid enum value.
func (s Severity) Validate() error {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return nil
	default:
		return fmt.Errorf("unknown severity: %q", s)
	}
}

// Channel is the audience channel an outgoing message is delivered on.
type Channel string

const (
	ChannelUser  Channel = "USER"
	ChannelAdmin Channel = "ADMIN"
)

// Validate checks if the Channel is a valid enum value.
func (c Channel) Validate() error {
	switch c {
	case ChannelUser, ChannelAdmin:
		return nil
	default:
		return fmt.Errorf("unknown channel: %q", c)
	}
}

// Action is a button or link attached to a message.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// OutputRequest is the producer-facing description of a message to emit.
type OutputRequest struct {
	Type        MessageType       `json:"type"`
	Severity    Severity          `json:"severity"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Channel     Channel           `json:"channel"`
	Topic       string            `json:"topic"`
	Actions     []Action          `json:"actions,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	Dismissable bool              `json:"dismissable"`
	Force       bool              `json:"force,omitempty"` // Bypass every gate check
}

// Validate checks the request fields the output gate depends on.
func (r *OutputRequest) Validate() error {
	if err := r.Type.Validate(); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}
	if err := r.Severity.Validate(); err != nil {
		return fmt.Errorf("invalid severity: %w", err)
	}
	if err := r.Channel.Validate(); err != nil {
		return fmt.Errorf("invalid channel: %w", err)
	}
	if r.Message == "" && r.Title == "" {
		return fmt.Errorf("output request needs a title or a message")
	}
	return nil
}

// OutputMessage is the gated, formatted artefact handed to listeners.
type OutputMessage struct {
	ID           string            `json:"id"`
	SemanticHash string            `json:"semantic_hash"`
	Type         MessageType       `json:"type"`
	Severity     Severity          `json:"severity"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Channel      Channel           `json:"channel"`
	Topic        string            `json:"topic"`
	Actions      []Action          `json:"actions,omitempty"`
	Context      map[string]string `json:"context"` // Always carries "timestamp"
	Dismissable  bool              `json:"dismissable"`
	TTL          time.Duration     `json:"ttl"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Outcome is the user's reaction to an emitted message.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDismissed Outcome = "dismissed"
	OutcomeIgnored   Outcome = "ignored"
)

// Validate checks if the Outcome is a valid enum value.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeAccepted, OutcomeDismissed, OutcomeIgnored:
		return nil
	default:
		return fmt.Errorf("unknown outcome: %q", o)
	}
}

// SilenceReason explains why the output gate withheld a message.
type SilenceReason string

const (
	SilenceRequested    SilenceReason = "silence_requested"
	SilenceUserBusy     SilenceReason = "user_busy"
	SilenceLowRelevance SilenceReason = "low_relevance"
	SilenceRateLimited  SilenceReason = "rate_limited"
	SilenceAlreadySaid  SilenceReason = "already_said"
	SilenceTopicBlocked SilenceReason = "topic_blocked"
)

// SentMessage is the communication memory record of an emitted message.
type SentMessage struct {
	ID           string      `json:"id"`
	SemanticHash string      `json:"semantic_hash"`
	MessageType  MessageType `json:"message_type"`
	Channel      Channel     `json:"channel"`
	SentAt       time.Time   `json:"sent_at"`
	Screen       string      `json:"screen,omitempty"`
	Topic        string      `json:"topic"`
	Outcome      Outcome     `json:"outcome,omitempty"` // Empty until feedback arrives
}

// BlockedTopic temporarily suppresses every message on a topic.
type BlockedTopic struct {
	TopicHash    string    `json:"topic_hash"`
	TopicName    string    `json:"topic_name"`
	BlockedUntil time.Time `json:"blocked_until"`
	Reason       string    `json:"reason"`
}

// Trend is the direction of a learned acceptance rate.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// FeedbackEntry is one raw outcome observation.
type FeedbackEntry struct {
	Topic     string       `json:"topic"`
	Type      MessageType  `json:"type"`
	Outcome   Outcome      `json:"outcome"`
	Timestamp time.Time    `json:"timestamp"`
	Hour      int          `json:"hour"`
	DayOfWeek time.Weekday `json:"day_of_week"`
}

// Pattern is an aggregated acceptance rate keyed by "topic:<name>" or "type:<name>".
type Pattern struct {
	Key            string    `json:"key"`
	AcceptanceRate float64   `json:"acceptance_rate"`
	SampleSize     int       `json:"sample_size"`
	Trend          Trend     `json:"trend"`
	LastUpdated    time.Time `json:"last_updated"`
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func copyAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
