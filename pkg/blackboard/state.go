package blackboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	maxJourneyLength = 50
	maxRecentErrors  = 20
)

// Moment describes what the viewer is doing right now.
type Moment struct {
	Screen        string    `json:"screen"`
	Activity      string    `json:"activity"`                 // e.g. "idle", "calculating", "filling_form"
	SilenceUntil  time.Time `json:"silence_until,omitempty"`  // Zero when no silence window is active
	SilenceReason string    `json:"silence_reason,omitempty"` // Why silence was requested
	UpdatedAt     time.Time `json:"updated_at"`
}

// Preferences are viewer-level display preferences loaded from persistence.
type Preferences struct {
	Language  string    `json:"language,omitempty"`
	Verbosity Verbosity `json:"verbosity,omitempty"`
	Muted     []string  `json:"muted,omitempty"` // Topics the viewer muted explicitly
}

// Identity is who the viewer is.
type Identity struct {
	UserID      string      `json:"user_id"`
	Role        Role        `json:"role"`
	Tier        string      `json:"tier,omitempty"`
	SkillLevel  string      `json:"skill_level,omitempty"`
	Preferences Preferences `json:"preferences"`
}

// CommunicationSummary is the state-level view of communication history.
// The full index lives in the memory package.
type CommunicationSummary struct {
	MessagesSent    int       `json:"messages_sent"`
	MessagesSilent  int       `json:"messages_silenced"`
	LastMessageAt   time.Time `json:"last_message_at,omitempty"`
	SilenceRequests int       `json:"silence_requests"`
}

// SessionMetrics counts pipeline activity for the current session.
type SessionMetrics struct {
	EventsReceived int `json:"events_received"`
	EventsRejected int `json:"events_rejected"`
	Decisions      int `json:"decisions"`
	Emitted        int `json:"emitted"`
	Silenced       int `json:"silenced"`
	Accepted       int `json:"accepted"`
	Dismissed      int `json:"dismissed"`
	Ignored        int `json:"ignored"`
}

// Session tracks the current viewer session.
type Session struct {
	ID        string         `json:"id"`
	StartedAt time.Time      `json:"started_at"`
	Metrics   SessionMetrics `json:"metrics"`
	Journey   []string       `json:"journey"` // Screens visited, most recent last
}

// HealthError is a recorded component failure.
type HealthError struct {
	At        time.Time `json:"at"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// Health summarises the pipeline's own condition.
type Health struct {
	Score            float64         `json:"score"` // [0,1]
	ActiveComponents map[string]bool `json:"active_components"`
	RecentErrors     []HealthError   `json:"recent_errors"`
}

// State is the single source of truth shared by every pipeline component.
type State struct {
	Moment        Moment               `json:"moment"`
	Identity      Identity             `json:"identity"`
	Communication CommunicationSummary `json:"communication"`
	Session       Session              `json:"session"`
	Health        Health               `json:"health"`
}

// Verbosity controls how much low-value output the viewer wants.
type Verbosity string

const (
	VerbosityQuiet  Verbosity = "quiet"  // low and info severity are withheld
	VerbosityNormal Verbosity = "normal" // default
	VerbosityChatty Verbosity = "chatty" // low-value output ignores receptivity
)

// Validate checks the verbosity. Empty means normal.
func (v Verbosity) Validate() error {
	switch v {
	case "", VerbosityQuiet, VerbosityNormal, VerbosityChatty:
		return nil
	default:
		return fmt.Errorf("invalid verbosity '%s'", v)
	}
}

// Viewer is the slice of state perception, decision rules and the output
// gate care about.
type Viewer struct {
	Role         Role
	Activity     string
	Screen       string
	Silenced     bool
	SilenceUntil time.Time
	Verbosity    Verbosity
	Muted        []string
}

// IsMuted reports whether the viewer muted topic.
func (v Viewer) IsMuted(topic string) bool {
	if topic == "" {
		return false
	}
	for _, m := range v.Muted {
		if m == topic {
			return true
		}
	}
	return false
}

// Viewer derives the viewer snapshot at the given instant.
func (s State) Viewer(now time.Time) Viewer {
	silenced := !s.Moment.SilenceUntil.IsZero() && now.Before(s.Moment.SilenceUntil)
	return Viewer{
		Role:         s.Identity.Role,
		Activity:     s.Moment.Activity,
		Screen:       s.Moment.Screen,
		Silenced:     silenced,
		SilenceUntil: s.Moment.SilenceUntil,
		Verbosity:    s.Identity.Preferences.Verbosity,
		Muted:        append([]string(nil), s.Identity.Preferences.Muted...),
	}
}

func (s State) clone() State {
	out := s
	out.Identity.Preferences.Muted = append([]string(nil), s.Identity.Preferences.Muted...)
	out.Session.Journey = append([]string(nil), s.Session.Journey...)
	out.Health.RecentErrors = append([]HealthError(nil), s.Health.RecentErrors...)
	out.Health.ActiveComponents = make(map[string]bool, len(s.Health.ActiveComponents))
	for k, v := range s.Health.ActiveComponents {
		out.Health.ActiveComponents[k] = v
	}
	return out
}

// Change is delivered to observers after every mutation.
type Change struct {
	Caller string
	At     time.Time
	State  State
}

// Observer is notified synchronously after each mutation.
// A returned error or panic is recorded in Health and never reaches the caller.
type Observer func(Change) error

// Store owns the shared State. Every mutation is attributed to a named caller.
// The store is safe for concurrent use; observers run outside the lock.
type Store struct {
	mu        sync.RWMutex
	state     State
	observers []observerEntry
	nextID    int
	now       func() time.Time
}

// NewStore creates a store for the given identity with a fresh session.
func NewStore(identity Identity) *Store {
	return NewStoreWithClock(identity, time.Now)
}

// NewStoreWithClock creates a store with an injected clock.
func NewStoreWithClock(identity Identity, now func() time.Time) *Store {
	if identity.Role == "" {
		identity.Role = RoleUser
	}
	started := now()
	return &Store{
		state: State{
			Moment:   Moment{Activity: "idle", UpdatedAt: started},
			Identity: identity,
			Session: Session{
				ID:        uuid.New().String(),
				StartedAt: started,
			},
			Health: Health{
				Score:            1,
				ActiveComponents: make(map[string]bool),
			},
		},
		now:       now,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Viewer returns the viewer snapshot at the store's current time.
func (s *Store) Viewer() Viewer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Viewer(s.now())
}

type observerEntry struct {
	id int
	fn Observer
}

// Subscribe registers an observer and returns a function that removes it.
// Observers are notified in subscription order.
func (s *Store) Subscribe(o Observer) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observerEntry{id: id, fn: o})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.observers {
			if e.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Update applies fn to the state on behalf of caller and notifies observers.
func (s *Store) Update(caller string, fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	change := Change{Caller: caller, At: s.now(), State: s.state.clone()}
	observers := make([]Observer, 0, len(s.observers))
	for _, e := range s.observers {
		observers = append(observers, e.fn)
	}
	s.mu.Unlock()

	for _, o := range observers {
		if err := notify(o, change); err != nil {
			s.recordError("observer", err)
		}
	}
}

func notify(o Observer, change Change) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return o(change)
}

// SetActivity records what the viewer is doing.
func (s *Store) SetActivity(caller, activity string) {
	s.Update(caller, func(st *State) {
		st.Moment.Activity = activity
		st.Moment.UpdatedAt = s.now()
	})
}

// SetScreen records the current screen and appends it to the session journey.
func (s *Store) SetScreen(caller, screen string) {
	s.Update(caller, func(st *State) {
		st.Moment.Screen = screen
		st.Moment.UpdatedAt = s.now()
		st.Session.Journey = append(st.Session.Journey, screen)
		if len(st.Session.Journey) > maxJourneyLength {
			st.Session.Journey = st.Session.Journey[len(st.Session.Journey)-maxJourneyLength:]
		}
	})
}

// RequestSilence opens a silence window of the given duration.
// It is a soft cancellation: already-emitted messages are untouched.
func (s *Store) RequestSilence(caller string, d time.Duration, reason string) time.Time {
	until := s.now().Add(d)
	s.Update(caller, func(st *State) {
		st.Moment.SilenceUntil = until
		st.Moment.SilenceReason = reason
		st.Communication.SilenceRequests++
	})
	return until
}

// ClearSilence closes any active silence window.
func (s *Store) ClearSilence(caller string) {
	s.Update(caller, func(st *State) {
		st.Moment.SilenceUntil = time.Time{}
		st.Moment.SilenceReason = ""
	})
}

// SetComponentAvailable marks an optional subsystem as available or degraded.
func (s *Store) SetComponentAvailable(caller, component string, available bool) {
	s.Update(caller, func(st *State) {
		st.Health.ActiveComponents[component] = available
		st.Health.Score = healthScore(st.Health)
	})
}

// RecordError records a component failure without notifying observers,
// so a failing observer cannot trigger itself.
func (s *Store) RecordError(component string, err error) {
	s.recordError(component, err)
}

func (s *Store) recordError(component string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &s.state.Health
	h.RecentErrors = append(h.RecentErrors, HealthError{
		At:        s.now(),
		Component: component,
		Message:   err.Error(),
	})
	if len(h.RecentErrors) > maxRecentErrors {
		h.RecentErrors = h.RecentErrors[len(h.RecentErrors)-maxRecentErrors:]
	}
	h.Score = healthScore(*h)
}

// healthScore starts at 1, loses 0.15 per unavailable component and 0.02 per recent error.
func healthScore(h Health) float64 {
	score := 1.0
	for _, ok := range h.ActiveComponents {
		if !ok {
			score -= 0.15
		}
	}
	score -= 0.02 * float64(len(h.RecentErrors))
	if score < 0 {
		return 0
	}
	return score
}
