package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dyluth/hark/pkg/blackboard"
)

func TestCriteria_Matches(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	msg := &blackboard.OutputMessage{
		Topic:     "margem_baixa",
		Channel:   blackboard.ChannelUser,
		Severity:  blackboard.SeverityHigh,
		CreatedAt: at,
	}

	tests := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{"empty matches all", Criteria{}, true},
		{"since before", Criteria{Since: at.Add(-time.Minute)}, true},
		{"since after", Criteria{Since: at.Add(time.Minute)}, false},
		{"until before", Criteria{Until: at.Add(-time.Minute)}, false},
		{"topic glob", Criteria{TopicGlob: "margem_*"}, true},
		{"topic glob miss", Criteria{TopicGlob: "stock*"}, false},
		{"malformed glob", Criteria{TopicGlob: "[margem"}, false},
		{"channel", Criteria{Channel: blackboard.ChannelAdmin}, false},
		{"severity", Criteria{Severity: blackboard.SeverityHigh}, true},
		{"all", Criteria{TopicGlob: "margem*", Channel: blackboard.ChannelUser, Until: at}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.Matches(msg))
		})
	}
}

func TestCriteria_HasFilters(t *testing.T) {
	assert.False(t, (&Criteria{}).HasFilters())
	assert.True(t, (&Criteria{TopicGlob: "*"}).HasFilters())
	assert.True(t, (&Criteria{Since: time.Now()}).HasFilters())
}
