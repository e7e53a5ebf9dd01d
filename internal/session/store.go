package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ekomarov/gemchat/internal/storage"
)

const (
	sessionsKey = "gemchat.sessions"
	modelKey    = "gemchat.model"

	// saveDelay coalesces bursts of mutations into one write
	saveDelay = 500 * time.Millisecond

	saveTimeout = 5 * time.Second
)

// ErrSessionNotFound is returned when a session id is unknown
var ErrSessionNotFound = errors.New("session not found")

// snapshot is the persisted shape of the store
type snapshot struct {
	Sessions []*ChatSession `json:"sessions"`
	ActiveID string         `json:"active_id"`
}

// Store keeps the ordered session list in memory and mirrors it to a blob
// store. Persistence is debounced and best effort: a failed save is logged
// and dropped, the in-memory state stays authoritative.
type Store struct {
	mu       sync.Mutex
	sessions []*ChatSession
	activeID string
	model    string

	blobs  storage.BlobStore
	logger *log.Logger

	saveTimer *time.Timer
	closed    bool
}

// NewStore creates a store backed by blobs. Call Load before use.
func NewStore(blobs storage.BlobStore, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		blobs:  blobs,
		logger: logger,
	}
}

// Load restores persisted sessions and the model choice. Corrupt or missing
// state falls back to a single fresh session. The store always holds at
// least one session afterwards.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.blobs.Get(ctx, sessionsKey)
	if err == nil {
		var snap snapshot
		if jerr := json.Unmarshal([]byte(raw), &snap); jerr != nil {
			s.logger.Warn("discarding corrupt session state", "error", jerr)
		} else {
			s.sessions = snap.Sessions
			s.activeID = snap.ActiveID
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to load sessions", "error", err)
	}

	if len(s.sessions) == 0 {
		fresh := NewChatSession()
		s.sessions = []*ChatSession{fresh}
		s.activeID = fresh.ID
	}
	if s.findLocked(s.activeID) == nil {
		s.activeID = s.sessions[0].ID
	}

	if model, err := s.blobs.Get(ctx, modelKey); err == nil {
		s.model = model
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to load model choice", "error", err)
	}
}

// Sessions returns the session list, newest first
func (s *Store) Sessions() []*ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ChatSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Active returns the current session
func (s *Store) Active() *ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(s.activeID)
}

// SetActive switches the current session
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(id) == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.activeID = id
	s.scheduleSaveLocked()
	return nil
}

// Create prepends a fresh session and makes it active
func (s *Store) Create() *ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := NewChatSession()
	s.sessions = append([]*ChatSession{fresh}, s.sessions...)
	s.activeID = fresh.ID
	s.scheduleSaveLocked()
	return fresh
}

// Delete removes a session. Deleting the last session replaces it with a
// fresh empty one, the list is never empty. Deleting the active session
// hands the active pointer to the first remaining session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	if len(s.sessions) == 0 {
		fresh := NewChatSession()
		s.sessions = []*ChatSession{fresh}
	}
	if s.activeID == id {
		s.activeID = s.sessions[0].ID
	}
	s.scheduleSaveLocked()
	return nil
}

// AppendMessage adds a message to a session and bumps its timestamp
func (s *Store) AppendMessage(sessionID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(sessionID)
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
	s.scheduleSaveLocked()
	return nil
}

// UpdateMessage mutates one message under the store lock
func (s *Store) UpdateMessage(sessionID, messageID string, fn func(*Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(sessionID)
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	for _, msg := range sess.Messages {
		if msg.ID == messageID {
			fn(msg)
			sess.UpdatedAt = time.Now()
			s.scheduleSaveLocked()
			return nil
		}
	}
	return fmt.Errorf("message not found: %s", messageID)
}

// SetTitle renames a session
func (s *Store) SetTitle(sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(sessionID)
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess.Title = title
	s.scheduleSaveLocked()
	return nil
}

// History returns a copy of a session's message slice
func (s *Store) History(sessionID string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(sessionID)
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	out := make([]*Message, len(sess.Messages))
	copy(out, sess.Messages)
	return out, nil
}

// Model returns the persisted model choice, empty when unset
func (s *Store) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel records the model choice and persists it immediately
func (s *Store) SetModel(ctx context.Context, model string) {
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
	if err := s.blobs.Set(ctx, modelKey, model); err != nil {
		s.logger.Warn("failed to persist model choice", "error", err)
	}
}

// Flush writes any pending state synchronously
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	payload, err := s.snapshotLocked()
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("failed to serialize sessions", "error", err)
		return
	}
	s.save(ctx, payload)
}

// Close flushes pending state and stops the debounce timer
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	s.Flush(ctx)
}

func (s *Store) findLocked(id string) *ChatSession {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// scheduleSaveLocked arms the debounce timer, resetting any pending one
func (s *Store) scheduleSaveLocked() {
	if s.closed {
		return
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(saveDelay, func() {
		s.mu.Lock()
		s.saveTimer = nil
		payload, err := s.snapshotLocked()
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("failed to serialize sessions", "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		s.save(ctx, payload)
	})
}

// snapshotLocked serializes current state. Attachment payloads are excluded
// by their json tags, only metadata is written.
func (s *Store) snapshotLocked() (string, error) {
	data, err := json.Marshal(snapshot{
		Sessions: s.sessions,
		ActiveID: s.activeID,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) save(ctx context.Context, payload string) {
	if err := s.blobs.Set(ctx, sessionsKey, payload); err != nil {
		s.logger.Warn("failed to persist sessions", "error", err)
	}
}
