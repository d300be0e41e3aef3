package newsbot

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionMode indicates whether a builder creates a new announcement or
// edits a published one
type SessionMode int

const (
	ModeCreate SessionMode = iota
	ModeEdit
)

func (m SessionMode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

func (m SessionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type SessionState string

const (
	SessionEditing   SessionState = "editing"
	SessionPublished SessionState = "published"
	SessionEdited    SessionState = "edited"
	SessionCancelled SessionState = "cancelled"
	SessionTimedOut  SessionState = "timed_out"
)

// Terminal returns true once the session no longer accepts input
func (s SessionState) Terminal() bool {
	return s != SessionEditing
}

// Session is one operator's open builder, bound to a single Draft.
// Interactions for a session are handled on separate goroutines, so
// everything below mu must only be accessed while holding it.
type Session struct {
	ID        string
	Mode      SessionMode
	OwnerID   string
	GuildID   string
	CreatedAt time.Time

	mu sync.Mutex

	// location of the builder message
	channelID string
	messageID string

	draft      *Draft
	target     *postedAnnouncement
	filled     map[OptionID]bool
	state      SessionState
	lastActive time.Time
	timer      *time.Timer
}

// SessionSummary is a point-in-time view of a Session
type SessionSummary struct {
	ID         string       `json:"id"`
	Mode       SessionMode  `json:"mode"`
	State      SessionState `json:"state"`
	OwnerID    string       `json:"owner_id"`
	GuildID    string       `json:"guild_id"`
	ChannelID  string       `json:"channel_id,omitempty"`
	MessageID  string       `json:"message_id,omitempty"`
	Title      string       `json:"title"`
	CreatedAt  time.Time    `json:"created_at"`
	LastActive time.Time    `json:"last_active"`
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Summary() SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSummary{
		ID:         s.ID,
		Mode:       s.Mode,
		State:      s.state,
		OwnerID:    s.OwnerID,
		GuildID:    s.GuildID,
		ChannelID:  s.channelID,
		MessageID:  s.messageID,
		Title:      s.draft.Title,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
	}
}

func (s *Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", s.ID),
		slog.String("mode", s.Mode.String()),
		slog.String("owner_id", s.OwnerID),
	)
}

// sessionManager tracks open builder sessions and expires them after a
// period of inactivity
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	timeout  time.Duration
	logger   *slog.Logger

	// onExpire is called (without any lock held) after a session
	// times out
	onExpire func(s *Session)
}

func newSessionManager(
	timeout time.Duration,
	logger *slog.Logger,
	onExpire func(s *Session),
) *sessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionManager{
		sessions: map[string]*Session{},
		timeout:  timeout,
		logger:   logger,
		onExpire: onExpire,
	}
}

// Open registers a new session in the Editing state and starts its
// inactivity timer
func (m *sessionManager) Open(
	mode SessionMode,
	ownerID string,
	guildID string,
	draft *Draft,
	target *postedAnnouncement,
) *Session {
	now := time.Now()
	s := &Session{
		ID:         uuid.NewString(),
		Mode:       mode,
		OwnerID:    ownerID,
		GuildID:    guildID,
		CreatedAt:  now,
		draft:      draft,
		target:     target,
		filled:     map[OptionID]bool{},
		state:      SessionEditing,
		lastActive: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	id := s.ID
	s.timer = time.AfterFunc(m.timeout, func() { m.expire(id) })
	m.logger.Info("opened builder session", "session", s)
	return s
}

// Get returns the open session with the given ID
func (m *sessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// touch resets the inactivity timer. The caller must hold s.mu.
func (m *sessionManager) touch(s *Session) {
	s.lastActive = time.Now()
	if s.timer != nil {
		s.timer.Reset(m.timeout)
	}
}

// finish moves s to a terminal state and stops tracking it. The caller
// must hold s.mu.
func (m *sessionManager) finish(s *Session, state SessionState) {
	s.state = state
	if s.timer != nil {
		s.timer.Stop()
	}
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	m.logger.Info("closed builder session", "session", s, "state", state)
}

// reopen puts a session back into the Editing state, after a failed
// publish where nothing was posted
func (m *sessionManager) reopen(s *Session) {
	s.state = SessionEditing
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.touch(s)
}

func (m *sessionManager) expire(id string) {
	s, err := m.Get(id)
	if err != nil {
		return
	}
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	// the timer may have fired while an interaction held the lock
	if remaining := m.timeout - time.Since(s.lastActive); remaining > 0 {
		s.timer.Reset(remaining)
		s.mu.Unlock()
		return
	}
	m.finish(s, SessionTimedOut)
	s.mu.Unlock()

	if m.onExpire != nil {
		m.onExpire(s)
	}
}

// CloseAll times out every open session, ex: on shutdown
func (m *sessionManager) CloseAll() {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		s.mu.Lock()
		if s.state.Terminal() {
			s.mu.Unlock()
			continue
		}
		m.finish(s, SessionTimedOut)
		s.mu.Unlock()
		if m.onExpire != nil {
			m.onExpire(s)
		}
	}
}

func (m *sessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns summaries of all open sessions, oldest first
func (m *sessionManager) List() []SessionSummary {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	summaries := make([]SessionSummary, 0, len(open))
	for _, s := range open {
		summaries = append(summaries, s.Summary())
	}
	sort.Slice(
		summaries, func(i, j int) bool {
			return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
		},
	)
	return summaries
}
