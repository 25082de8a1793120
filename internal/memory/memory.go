// Package memory implements communication memory: the semantic-hash-indexed
// history of emitted messages and temporarily blocked topics the output gate
// uses for deduplication and receptivity analytics.
package memory

import (
	"sync"
	"time"

	"github.com/dyluth/hark/pkg/blackboard"
)

// Config holds memory windows. Zero values are replaced by defaults in New.
type Config struct {
	Retention          time.Duration // Messages older than this are pruned (1h)
	DedupWindow        time.Duration // Same hash inside this window is a repeat (30m)
	ConversationWindow time.Duration // Window for topic saturation (10m)
	TopicSaturation    int           // Same-topic messages allowed per conversation (3)
	TopicBlock         time.Duration // Default cooldown after dismissal (5m)
	AcceptanceWindow   int           // Messages considered for acceptance rate (20)
}

func (c *Config) defaults() {
	if c.Retention <= 0 {
		c.Retention = time.Hour
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 30 * time.Minute
	}
	if c.DedupWindow > c.Retention {
		c.DedupWindow = c.Retention
	}
	if c.ConversationWindow <= 0 {
		c.ConversationWindow = 10 * time.Minute
	}
	if c.TopicSaturation <= 0 {
		c.TopicSaturation = 3
	}
	if c.TopicBlock <= 0 {
		c.TopicBlock = 5 * time.Minute
	}
	if c.AcceptanceWindow <= 0 {
		c.AcceptanceWindow = 20
	}
}

// ReceptivityFloor is the minimum rolling acceptance rate for a receptive viewer.
const ReceptivityFloor = 0.2

// Duplication is the result of CheckDuplication.
type Duplication struct {
	IsDuplicate       bool
	Reason            blackboard.SilenceReason
	Original          *blackboard.SentMessage
	TimeSinceOriginal time.Duration
}

// Memory is safe for concurrent use; the core writes, the admin surface reads.
type Memory struct {
	mu       sync.RWMutex
	cfg      Config
	messages []blackboard.SentMessage // oldest first
	blocked  map[string]blackboard.BlockedTopic
	now      func() time.Time
}

// New creates an empty memory. now may be nil to use time.Now.
func New(cfg Config, now func() time.Time) *Memory {
	cfg.defaults()
	if now == nil {
		now = time.Now
	}
	return &Memory{
		cfg:     cfg,
		blocked: make(map[string]blackboard.BlockedTopic),
		now:     now,
	}
}

// Config returns the effective configuration.
func (m *Memory) Config() Config {
	return m.cfg
}

// CheckDuplication reports whether a message with this hash and topic would repeat
// something already said. Checks, in order: active topic block, same hash inside
// the dedup window, topic saturation inside the conversation window.
func (m *Memory) CheckDuplication(hash, topic string) Duplication {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()

	if topic != "" {
		if block, ok := m.blocked[TopicHash(topic)]; ok && now.Before(block.BlockedUntil) {
			return Duplication{IsDuplicate: true, Reason: blackboard.SilenceTopicBlocked}
		}
	}

	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		age := now.Sub(msg.SentAt)
		if age > m.cfg.DedupWindow {
			break
		}
		if msg.SemanticHash == hash {
			original := msg
			return Duplication{
				IsDuplicate:       true,
				Reason:            blackboard.SilenceAlreadySaid,
				Original:          &original,
				TimeSinceOriginal: age,
			}
		}
	}

	if topic != "" && m.countTopicLocked(topic, m.cfg.ConversationWindow, now) >= m.cfg.TopicSaturation {
		return Duplication{IsDuplicate: true, Reason: blackboard.SilenceAlreadySaid}
	}

	return Duplication{}
}

// Remember records an emitted message. SentAt defaults to now.
func (m *Memory) Remember(rec blackboard.SentMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.SentAt.IsZero() {
		rec.SentAt = m.now()
	}
	m.messages = append(m.messages, rec)
}

// MarkAccepted records an accepted outcome for the most recent message with this hash.
func (m *Memory) MarkAccepted(hash string) (blackboard.SentMessage, bool) {
	return m.markOutcome(hash, blackboard.OutcomeAccepted)
}

// MarkIgnored records an ignored outcome for the most recent message with this hash.
func (m *Memory) MarkIgnored(hash string) (blackboard.SentMessage, bool) {
	return m.markOutcome(hash, blackboard.OutcomeIgnored)
}

// MarkDismissed records a dismissal and blocks the message's topic for the
// configured cooldown.
func (m *Memory) MarkDismissed(hash string) (blackboard.SentMessage, bool) {
	msg, ok := m.markOutcome(hash, blackboard.OutcomeDismissed)
	if ok && msg.Topic != "" {
		m.BlockTopic(msg.Topic, m.cfg.TopicBlock, "dismissed")
	}
	return msg, ok
}

// markOutcome sets the outcome once; a message that already has one is left alone.
func (m *Memory) markOutcome(hash string, outcome blackboard.Outcome) (blackboard.SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].SemanticHash != hash {
			continue
		}
		if m.messages[i].Outcome != "" {
			return m.messages[i], false
		}
		m.messages[i].Outcome = outcome
		return m.messages[i], true
	}
	return blackboard.SentMessage{}, false
}

// BlockTopic blocks a topic for d, replacing any earlier block of the same topic.
func (m *Memory) BlockTopic(topic string, d time.Duration, reason string) blackboard.BlockedTopic {
	if d <= 0 {
		d = m.cfg.TopicBlock
	}
	block := blackboard.BlockedTopic{
		TopicHash:    TopicHash(topic),
		TopicName:    topic,
		BlockedUntil: m.now().Add(d),
		Reason:       reason,
	}
	m.mu.Lock()
	m.blocked[block.TopicHash] = block
	m.mu.Unlock()
	return block
}

// IsTopicBlocked returns the active block for a topic, if any.
func (m *Memory) IsTopicBlocked(topic string) (blackboard.BlockedTopic, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.blocked[TopicHash(topic)]
	if !ok || !m.now().Before(block.BlockedUntil) {
		return blackboard.BlockedTopic{}, false
	}
	return block, true
}

// MentionCount counts messages on topic sent within the trailing window.
func (m *Memory) MentionCount(topic string, window time.Duration) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countTopicLocked(topic, window, m.now())
}

func (m *Memory) countTopicLocked(topic string, window time.Duration, now time.Time) int {
	count := 0
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if now.Sub(msg.SentAt) > window {
			break
		}
		if msg.Topic == topic {
			count++
		}
	}
	return count
}

// ChannelCount counts messages sent on a channel within the trailing window.
func (m *Memory) ChannelCount(channel blackboard.Channel, window time.Duration) int {
	count, _ := m.ChannelWindow(channel, window)
	return count
}

// ChannelWindow counts messages sent on a channel less than window ago and
// returns the send time of the oldest of them.
func (m *Memory) ChannelWindow(channel blackboard.Channel, window time.Duration) (count int, oldest time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if now.Sub(msg.SentAt) >= window {
			break
		}
		if msg.Channel == channel {
			count++
			oldest = msg.SentAt
		}
	}
	return count, oldest
}

// AcceptanceRate is the share of accepted outcomes over the last K messages that
// have an outcome. With no history it is a neutral 0.5.
func (m *Memory) AcceptanceRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	accepted, total := 0, 0
	for i := len(m.messages) - 1; i >= 0 && total < m.cfg.AcceptanceWindow; i-- {
		switch m.messages[i].Outcome {
		case "":
			continue
		case blackboard.OutcomeAccepted:
			accepted++
		}
		total++
	}
	if total == 0 {
		return 0.5
	}
	return float64(accepted) / float64(total)
}

// IsReceptive reports whether the viewer's rolling acceptance is at least ReceptivityFloor.
func (m *Memory) IsReceptive() bool {
	return m.AcceptanceRate() >= ReceptivityFloor
}

// Recent returns up to n most recent messages, newest first.
func (m *Memory) Recent(n int) []blackboard.SentMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.messages) || n <= 0 {
		n = len(m.messages)
	}
	out := make([]blackboard.SentMessage, 0, n)
	for i := len(m.messages) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.messages[i])
	}
	return out
}

// Len returns the number of remembered messages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Cleanup prunes messages past retention and expired topic blocks.
func (m *Memory) Cleanup() (prunedMessages, prunedBlocks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	keepFrom := 0
	for keepFrom < len(m.messages) && now.Sub(m.messages[keepFrom].SentAt) > m.cfg.Retention {
		keepFrom++
	}
	if keepFrom > 0 {
		prunedMessages = keepFrom
		m.messages = append([]blackboard.SentMessage(nil), m.messages[keepFrom:]...)
	}

	for hash, block := range m.blocked {
		if !now.Before(block.BlockedUntil) {
			delete(m.blocked, hash)
			prunedBlocks++
		}
	}
	return prunedMessages, prunedBlocks
}
