package wizard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptforge/internal/logging"
	"promptforge/internal/types"
)

// ErrSessionNotFound is returned for ids with no live or persisted record.
var ErrSessionNotFound = fmt.Errorf("wizard session not found")

// SessionManager owns every SessionRecord. All mutations go through it and
// are serialized per session id; the global map lock is never held across
// disk I/O.
type SessionManager struct {
	dir string

	mu       sync.Mutex
	sessions map[string]*SessionRecord
	locks    map[string]*sync.Mutex

	now func() time.Time
}

// NewSessionManager creates the manager and its sessions directory.
func NewSessionManager(dir string) (*SessionManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions dir: %w", err)
	}
	return &SessionManager{
		dir:      dir,
		sessions: make(map[string]*SessionRecord),
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
	}, nil
}

// sessionLock returns the mutex for one id, creating it on first use.
func (m *SessionManager) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

// Create opens a new session for the given input, applying the entry
// decision table, and persists it.
func (m *SessionManager) Create(input string, preset types.Preset, engine types.EngineTag, analysis types.AnalyzedRequest, mode string, maxTurns, timeoutPerTurnMS int) (SessionRecord, error) {
	decision := Decide(mode, maxTurns, analysis)
	now := m.now()

	session := &SessionRecord{
		ID:            uuid.NewString(),
		OriginalInput: input,
		Preset:        preset,
		Engine:        engine,
		CreatedAt:     now,
		LastActivity:  now,
		State: State{
			Enabled:        decision.Enabled,
			Bypassed:       !decision.Enabled,
			Resolved:       !decision.Enabled,
			AmbiguityScore: 1 - analysis.Confidence,
			Analysis:       &analysis,
			CanOfferSkip:   decision.CanOfferSkip,
			Config: TurnConfig{
				Mode:             mode,
				MaxTurns:         maxTurns,
				TimeoutPerTurnMS: timeoutPerTurnMS,
			},
		},
	}

	lock := m.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	if err := m.persist(session); err != nil {
		return SessionRecord{}, err
	}
	logging.Wizard("Created session %s: enabled=%v skip=%v", session.ID, decision.Enabled, decision.CanOfferSkip)
	return session.snapshot(), nil
}

// Get returns a snapshot of one session.
func (m *SessionManager) Get(id string) (SessionRecord, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.load(id)
	if err != nil {
		return SessionRecord{}, err
	}
	return session.snapshot(), nil
}

// AppendUserMessage records a user turn. Reaching the turn cap resolves the
// session.
func (m *SessionManager) AppendUserMessage(id, text string) (SessionRecord, error) {
	return m.mutate(id, func(s *SessionRecord) {
		s.Messages = append(s.Messages, Message{Role: RoleUser, Content: text, Timestamp: m.now()})
		s.State.Config.CurrentTurn++
		if s.State.Config.CurrentTurn >= s.State.Config.MaxTurns {
			s.State.Resolved = true
		}
	})
}

// AppendAssistantMessage records an assistant turn. The ambiguity score
// tracks the message's confidence; an unambiguous turn resolves the session.
func (m *SessionManager) AppendAssistantMessage(id, text string, meta TurnMeta) (SessionRecord, error) {
	return m.mutate(id, func(s *SessionRecord) {
		metaCopy := meta
		s.Messages = append(s.Messages, Message{Role: RoleAssistant, Content: text, Timestamp: m.now(), Meta: &metaCopy})
		s.State.AmbiguityScore = meta.Confidence
		if !meta.IsAmbiguous {
			s.State.Resolved = true
		}
	})
}

// CompleteWizard resolves the session unconditionally.
func (m *SessionManager) CompleteWizard(id string) (SessionRecord, error) {
	return m.mutate(id, func(s *SessionRecord) {
		s.State.Resolved = true
	})
}

// Close deletes the session from memory and disk.
func (m *SessionManager) Close(id string) error {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	// The lock entry stays: a concurrent caller may already hold the mutex
	// pointer, and dropping it would let a re-created session with the same
	// id run unserialized against that caller.
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if err := os.Remove(m.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	logging.Wizard("Closed session %s", id)
	return nil
}

// SweepIdle removes sessions idle longer than retention. Returns how many
// were removed.
func (m *SessionManager) SweepIdle(retention time.Duration) int {
	m.mu.Lock()
	var stale []string
	cutoff := m.now().Add(-retention)
	for id, session := range m.sessions {
		if session.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		if err := m.Close(id); err != nil {
			logging.Wizard("Sweep failed to close %s: %v", id, err)
		}
	}
	if len(stale) > 0 {
		logging.Wizard("Swept %d idle sessions", len(stale))
	}
	return len(stale)
}

// mutate runs fn under the session's lock, bumps activity, and persists.
func (m *SessionManager) mutate(id string, fn func(*SessionRecord)) (SessionRecord, error) {
	lock := m.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	session, err := m.load(id)
	if err != nil {
		return SessionRecord{}, err
	}

	fn(session)
	session.LastActivity = m.now()

	if err := m.persist(session); err != nil {
		return SessionRecord{}, err
	}
	return session.snapshot(), nil
}

// load returns the live record, falling back to disk for sessions from a
// previous process. Caller holds the session lock.
func (m *SessionManager) load(id string) (*SessionRecord, error) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return session, nil
	}

	raw, err := os.ReadFile(m.path(id))
	if os.IsNotExist(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	session = &SessionRecord{}
	if err := json.Unmarshal(raw, session); err != nil {
		return nil, fmt.Errorf("corrupt session file for %s: %w", id, err)
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()
	return session, nil
}

// persist writes the record atomically: temp file in the same directory,
// then rename. Caller holds the session lock.
func (m *SessionManager) persist(session *SessionRecord) error {
	payload, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	path := m.path(session.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write session temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish session file: %w", err)
	}
	return nil
}

func (m *SessionManager) path(id string) string {
	return filepath.Join(m.dir, id+".json")
}
