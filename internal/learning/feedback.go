// Package learning turns message outcomes into per-topic and per-type
// acceptance patterns that tune relevance and emission frequency.
package learning

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/hark/pkg/blackboard"
)

const (
	maxEntries = 1000

	minTopicSamples = 3
	minTypeSamples  = 5
	minTrendSamples = 10
	minHourSamples  = 3
	minAvoidSamples = 5
	minWeekSamples  = 5

	trendThreshold = 0.1
	avoidThreshold = 0.3
	hourPreference = 0.5

	// DefaultIdealFrequency is used until a week of feedback exists.
	DefaultIdealFrequency = 3
)

// Preferences is a read-only snapshot of what has been learned.
type Preferences struct {
	TopicPatterns  []blackboard.Pattern `json:"topic_patterns"`
	TypePatterns   []blackboard.Pattern `json:"type_patterns"`
	PreferredHours []int                `json:"preferred_hours"`
	IdealFrequency int                  `json:"ideal_frequency_per_hour"`
	FrequencyKnown bool                 `json:"frequency_learned"`
	SampleSize     int                  `json:"sample_size"`
}

// Learner aggregates feedback entries into patterns. RunAnalysis recomputes
// every derived value; readers only ever see the result of the last analysis.
type Learner struct {
	mu             sync.RWMutex
	entries        []blackboard.FeedbackEntry
	topicPatterns  map[string]blackboard.Pattern
	typePatterns   map[string]blackboard.Pattern
	preferredHours map[int]bool
	idealFrequency int
	frequencyKnown bool
	now            func() time.Time
}

// New creates an empty learner. now may be nil to use time.Now.
func New(now func() time.Time) *Learner {
	if now == nil {
		now = time.Now
	}
	return &Learner{
		topicPatterns:  make(map[string]blackboard.Pattern),
		typePatterns:   make(map[string]blackboard.Pattern),
		preferredHours: make(map[int]bool),
		idealFrequency: DefaultIdealFrequency,
		now:            now,
	}
}

// RecordFeedback appends a timestamped entry, keeping the most recent 1000.
func (l *Learner) RecordFeedback(topic string, typ blackboard.MessageType, outcome blackboard.Outcome) blackboard.FeedbackEntry {
	now := l.now()
	entry := blackboard.FeedbackEntry{
		Topic:     topic,
		Type:      typ,
		Outcome:   outcome,
		Timestamp: now,
		Hour:      now.Hour(),
		DayOfWeek: now.Weekday(),
	}

	l.mu.Lock()
	l.appendLocked(entry)
	l.mu.Unlock()
	return entry
}

// Restore loads previously persisted entries, oldest first, and reruns analysis.
func (l *Learner) Restore(entries []blackboard.FeedbackEntry) {
	l.mu.Lock()
	for _, e := range entries {
		l.appendLocked(e)
	}
	l.mu.Unlock()
	l.RunAnalysis()
}

func (l *Learner) appendLocked(e blackboard.FeedbackEntry) {
	l.entries = append(l.entries, e)
	if len(l.entries) > maxEntries {
		l.entries = append([]blackboard.FeedbackEntry(nil), l.entries[len(l.entries)-maxEntries:]...)
	}
}

// Entries returns a copy of the raw feedback history.
func (l *Learner) Entries() []blackboard.FeedbackEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]blackboard.FeedbackEntry(nil), l.entries...)
}

// RunAnalysis recomputes topic and type patterns, preferred hours and the ideal frequency.
func (l *Learner) RunAnalysis() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	byTopic := make(map[string][]blackboard.FeedbackEntry)
	byType := make(map[string][]blackboard.FeedbackEntry)
	byHour := make(map[int][]blackboard.FeedbackEntry)
	var week []blackboard.FeedbackEntry

	for _, e := range l.entries {
		if e.Topic != "" {
			byTopic[e.Topic] = append(byTopic[e.Topic], e)
		}
		if e.Type != "" {
			byType[string(e.Type)] = append(byType[string(e.Type)], e)
		}
		byHour[e.Hour] = append(byHour[e.Hour], e)
		if now.Sub(e.Timestamp) <= 7*24*time.Hour {
			week = append(week, e)
		}
	}

	l.topicPatterns = buildPatterns("topic:", byTopic, minTopicSamples, now)
	l.typePatterns = buildPatterns("type:", byType, minTypeSamples, now)

	l.preferredHours = make(map[int]bool)
	for hour, entries := range byHour {
		if len(entries) >= minHourSamples && acceptance(entries) >= hourPreference {
			l.preferredHours[hour] = true
		}
	}

	if len(week) >= minWeekSamples {
		l.idealFrequency = frequencyBucket(acceptance(week))
		l.frequencyKnown = true
	} else {
		l.idealFrequency = DefaultIdealFrequency
		l.frequencyKnown = false
	}
}

func buildPatterns(prefix string, groups map[string][]blackboard.FeedbackEntry, minSamples int, now time.Time) map[string]blackboard.Pattern {
	out := make(map[string]blackboard.Pattern, len(groups))
	for name, entries := range groups {
		if len(entries) < minSamples {
			continue
		}
		key := prefix + name
		out[key] = blackboard.Pattern{
			Key:            key,
			AcceptanceRate: acceptance(entries),
			SampleSize:     len(entries),
			Trend:          trend(entries),
			LastUpdated:    now,
		}
	}
	return out
}

// trend compares the acceptance of the older half of the history with the newer half.
func trend(entries []blackboard.FeedbackEntry) blackboard.Trend {
	if len(entries) < minTrendSamples {
		return blackboard.TrendStable
	}
	mid := len(entries) / 2
	diff := acceptance(entries[mid:]) - acceptance(entries[:mid])
	switch {
	case diff > trendThreshold:
		return blackboard.TrendIncreasing
	case diff < -trendThreshold:
		return blackboard.TrendDecreasing
	default:
		return blackboard.TrendStable
	}
}

func acceptance(entries []blackboard.FeedbackEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	accepted := 0
	for _, e := range entries {
		if e.Outcome == blackboard.OutcomeAccepted {
			accepted++
		}
	}
	return float64(accepted) / float64(len(entries))
}

func frequencyBucket(rate float64) int {
	switch {
	case rate < 0.3:
		return 1
	case rate < 0.5:
		return 2
	case rate < 0.7:
		return 3
	default:
		return 5
	}
}

// ShouldAvoidTopic is true once a topic has at least 5 samples and acceptance <= 0.3.
func (l *Learner) ShouldAvoidTopic(topic string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.topicPatterns["topic:"+topic]
	return ok && p.SampleSize >= minAvoidSamples && p.AcceptanceRate <= avoidThreshold
}

// Pattern returns the learned pattern for a key such as "topic:pricing".
func (l *Learner) Pattern(key string) (blackboard.Pattern, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if strings.HasPrefix(key, "type:") {
		p, ok := l.typePatterns[key]
		return p, ok
	}
	p, ok := l.topicPatterns[key]
	return p, ok
}

// RelevanceAdjustment combines topic acceptance, topic trend, type acceptance and
// the current-hour preference into an adjustment in [-0.5, 0.5].
func (l *Learner) RelevanceAdjustment(topic string, typ blackboard.MessageType) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	adj := 0.0
	if p, ok := l.topicPatterns["topic:"+topic]; ok {
		adj += (p.AcceptanceRate - 0.5) * 0.4
		switch p.Trend {
		case blackboard.TrendIncreasing:
			adj += 0.05
		case blackboard.TrendDecreasing:
			adj -= 0.05
		}
	}
	if p, ok := l.typePatterns["type:"+string(typ)]; ok {
		adj += (p.AcceptanceRate - 0.5) * 0.2
	}
	if len(l.preferredHours) > 0 {
		if l.preferredHours[l.now().Hour()] {
			adj += 0.1
		} else {
			adj -= 0.05
		}
	}

	switch {
	case adj > 0.5:
		return 0.5
	case adj < -0.5:
		return -0.5
	default:
		return adj
	}
}

// IdealFrequency returns the learned messages-per-hour target. known is false
// until at least 5 feedback entries exist in the trailing week.
func (l *Learner) IdealFrequency() (perHour int, known bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.idealFrequency, l.frequencyKnown
}

// Preferences returns a snapshot of everything learned, sorted for stable output.
func (l *Learner) Preferences() Preferences {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prefs := Preferences{
		TopicPatterns:  sortedPatterns(l.topicPatterns),
		TypePatterns:   sortedPatterns(l.typePatterns),
		IdealFrequency: l.idealFrequency,
		FrequencyKnown: l.frequencyKnown,
		SampleSize:     len(l.entries),
	}
	for hour := range l.preferredHours {
		prefs.PreferredHours = append(prefs.PreferredHours, hour)
	}
	sort.Ints(prefs.PreferredHours)
	return prefs
}

func sortedPatterns(m map[string]blackboard.Pattern) []blackboard.Pattern {
	out := make([]blackboard.Pattern, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
