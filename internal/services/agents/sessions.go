package agents

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/kstocklab/finsight/internal/common"
	"github.com/kstocklab/finsight/internal/models"
)

// SessionStore persists /query conversations in an embedded Badger store.
type SessionStore struct {
	store  *badgerhold.Store
	logger arbor.ILogger
}

// OpenSessionStore opens (or creates) the session database at dir.
func OpenSessionStore(dir string, logger arbor.ILogger) (*SessionStore, error) {
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil // disable badger's own logger in favor of arbor

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store at %s: %w", dir, err)
	}
	return &SessionStore{store: store, logger: logger}, nil
}

// GetOrCreate loads a session by ID, creating a fresh one when the ID is
// empty or unknown.
func (s *SessionStore) GetOrCreate(sessionID string) (*models.ChatSession, error) {
	if sessionID != "" {
		var session models.ChatSession
		err := s.store.Get(sessionID, &session)
		if err == nil {
			return &session, nil
		}
		if err != badgerhold.ErrNotFound {
			return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
		}
	}

	now := time.Now().UTC()
	session := &models.ChatSession{
		SessionID: common.NewSessionID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Insert(session.SessionID, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// AppendTurn records one exchange on a session.
func (s *SessionStore) AppendTurn(session *models.ChatSession, turn models.SessionTurn) error {
	session.Turns = append(session.Turns, turn)
	session.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(session.SessionID, session); err != nil {
		return fmt.Errorf("failed to update session %s: %w", session.SessionID, err)
	}
	return nil
}

// Get loads a session by ID.
func (s *SessionStore) Get(sessionID string) (*models.ChatSession, error) {
	var session models.ChatSession
	if err := s.store.Get(sessionID, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("session %s not found", sessionID)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return &session, nil
}

// Close releases the underlying Badger database.
func (s *SessionStore) Close() error {
	return s.store.Close()
}
