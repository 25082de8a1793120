package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/hark/pkg/blackboard"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLearner() (*Learner, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)}
	return New(clock.Now), clock
}

func record(l *Learner, topic string, typ blackboard.MessageType, outcome blackboard.Outcome, n int) {
	for i := 0; i < n; i++ {
		l.RecordFeedback(topic, typ, outcome)
	}
}

func TestRecordFeedback(t *testing.T) {
	l, clock := newTestLearner()
	entry := l.RecordFeedback("pricing", blackboard.MessageInfo, blackboard.OutcomeAccepted)

	assert.Equal(t, clock.Now(), entry.Timestamp)
	assert.Equal(t, 14, entry.Hour)
	assert.Equal(t, time.Monday, entry.DayOfWeek)
	assert.Len(t, l.Entries(), 1)
}

func TestRecordFeedback_BoundedHistory(t *testing.T) {
	l, _ := newTestLearner()
	record(l, "old", blackboard.MessageInfo, blackboard.OutcomeIgnored, 10)
	record(l, "new", blackboard.MessageInfo, blackboard.OutcomeAccepted, 1000)

	entries := l.Entries()
	require.Len(t, entries, 1000)
	assert.Equal(t, "new", entries[0].Topic)
}

func TestRunAnalysis_MinimumSamples(t *testing.T) {
	l, _ := newTestLearner()
	record(l, "pricing", blackboard.MessageWarning, blackboard.OutcomeAccepted, 2)
	l.RunAnalysis()

	_, ok := l.Pattern("topic:pricing")
	assert.False(t, ok, "two samples are not enough for a topic pattern")

	record(l, "pricing", blackboard.MessageWarning, blackboard.OutcomeDismissed, 1)
	l.RunAnalysis()

	p, ok := l.Pattern("topic:pricing")
	require.True(t, ok)
	assert.Equal(t, 3, p.SampleSize)
	assert.InDelta(t, 2.0/3.0, p.AcceptanceRate, 1e-9)

	_, ok = l.Pattern("type:warning")
	assert.False(t, ok, "type patterns need five samples")
}

func TestRunAnalysis_Trend(t *testing.T) {
	tests := []struct {
		name   string
		first  blackboard.Outcome
		second blackboard.Outcome
		want   blackboard.Trend
	}{
		{"improving", blackboard.OutcomeDismissed, blackboard.OutcomeAccepted, blackboard.TrendIncreasing},
		{"worsening", blackboard.OutcomeAccepted, blackboard.OutcomeIgnored, blackboard.TrendDecreasing},
		{"flat", blackboard.OutcomeAccepted, blackboard.OutcomeAccepted, blackboard.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLearner()
			record(l, "t", blackboard.MessageInfo, tt.first, 5)
			record(l, "t", blackboard.MessageInfo, tt.second, 5)
			l.RunAnalysis()

			p, ok := l.Pattern("topic:t")
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Trend)
		})
	}

	t.Run("fewer than ten samples is stable", func(t *testing.T) {
		l, _ := newTestLearner()
		record(l, "t", blackboard.MessageInfo, blackboard.OutcomeDismissed, 4)
		record(l, "t", blackboard.MessageInfo, blackboard.OutcomeAccepted, 4)
		l.RunAnalysis()
		p, _ := l.Pattern("topic:t")
		assert.Equal(t, blackboard.TrendStable, p.Trend)
	})
}

func TestShouldAvoidTopic_Convergence(t *testing.T) {
	l, _ := newTestLearner()

	for i := 1; i <= 5; i++ {
		l.RecordFeedback("upsell", blackboard.MessageSuggestion, blackboard.OutcomeDismissed)
		l.RunAnalysis()
		if i < 5 {
			assert.False(t, l.ShouldAvoidTopic("upsell"), "after %d dismissals", i)
		}
	}
	assert.True(t, l.ShouldAvoidTopic("upsell"))
	assert.False(t, l.ShouldAvoidTopic("other"))
}

func TestRelevanceAdjustment(t *testing.T) {
	t.Run("zero without data", func(t *testing.T) {
		l, _ := newTestLearner()
		assert.Equal(t, 0.0, l.RelevanceAdjustment("t", blackboard.MessageInfo))
	})

	t.Run("negative for rejected topic and type", func(t *testing.T) {
		l, _ := newTestLearner()
		record(l, "t", blackboard.MessageSuggestion, blackboard.OutcomeDismissed, 5)
		l.RunAnalysis()
		// no preferred hours yet: only topic and type contribute
		assert.InDelta(t, -0.3, l.RelevanceAdjustment("t", blackboard.MessageSuggestion), 1e-9)
	})

	t.Run("preferred hour bonus", func(t *testing.T) {
		l, clock := newTestLearner()
		record(l, "t", blackboard.MessageInfo, blackboard.OutcomeAccepted, 3)
		l.RunAnalysis()
		// topic rate 1.0 → +0.2, hour 14 preferred → +0.1
		assert.InDelta(t, 0.3, l.RelevanceAdjustment("t", blackboard.MessageInfo), 1e-9)

		clock.Advance(3 * time.Hour)
		// same data, non-preferred hour → +0.2 - 0.05
		assert.InDelta(t, 0.15, l.RelevanceAdjustment("t", blackboard.MessageInfo), 1e-9)
	})
}

func TestIdealFrequency(t *testing.T) {
	tests := []struct {
		name     string
		accepted int
		rejected int
		want     int
	}{
		{"mostly rejected", 1, 9, 1},
		{"below half", 4, 6, 2},
		{"above half", 6, 4, 3},
		{"mostly accepted", 8, 2, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLearner()
			record(l, "a", blackboard.MessageInfo, blackboard.OutcomeAccepted, tt.accepted)
			record(l, "b", blackboard.MessageInfo, blackboard.OutcomeIgnored, tt.rejected)
			l.RunAnalysis()

			freq, known := l.IdealFrequency()
			assert.True(t, known)
			assert.Equal(t, tt.want, freq)
		})
	}

	t.Run("unknown without a week of data", func(t *testing.T) {
		l, _ := newTestLearner()
		record(l, "a", blackboard.MessageInfo, blackboard.OutcomeAccepted, 4)
		l.RunAnalysis()
		freq, known := l.IdealFrequency()
		assert.False(t, known)
		assert.Equal(t, DefaultIdealFrequency, freq)
	})

	t.Run("old entries fall out of the week", func(t *testing.T) {
		l, clock := newTestLearner()
		record(l, "a", blackboard.MessageInfo, blackboard.OutcomeAccepted, 10)
		clock.Advance(8 * 24 * time.Hour)
		l.RunAnalysis()
		_, known := l.IdealFrequency()
		assert.False(t, known)
	})
}

func TestRestoreAndPreferences(t *testing.T) {
	l, clock := newTestLearner()
	entries := make([]blackboard.FeedbackEntry, 0, 6)
	for i := 0; i < 6; i++ {
		entries = append(entries, blackboard.FeedbackEntry{
			Topic: "pricing", Type: blackboard.MessageInfo, Outcome: blackboard.OutcomeAccepted,
			Timestamp: clock.Now(), Hour: 9,
		})
	}
	l.Restore(entries)

	prefs := l.Preferences()
	assert.Equal(t, 6, prefs.SampleSize)
	assert.Equal(t, []int{9}, prefs.PreferredHours)
	require.Len(t, prefs.TopicPatterns, 1)
	assert.Equal(t, "topic:pricing", prefs.TopicPatterns[0].Key)
	require.Len(t, prefs.TypePatterns, 1)
	assert.Equal(t, "type:info", prefs.TypePatterns[0].Key)
	assert.True(t, prefs.FrequencyKnown)
	assert.Equal(t, 5, prefs.IdealFrequency)
}
