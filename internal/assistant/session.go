package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/metrics"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/pkg/logger"
)

const DefaultSessionID = "default"

// SessionStore persists conversation state between turns. Load of an unknown
// session returns an empty State.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (State, error)
	Save(ctx context.Context, sessionID string, state State) error
	Delete(ctx context.Context, sessionID string) error
}

// TurnRecorder keeps an audit log of completed turns.
type TurnRecorder interface {
	InsertTurnRecord(ctx context.Context, record *models.TurnRecord) error
}

// MemoryStore keeps encoded state per session in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (State, error) {
	m.mu.RLock()
	data, ok := m.states[sessionID]
	m.mu.RUnlock()

	if !ok {
		return State{}, nil
	}
	return DecodeState(data)
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, state State) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.states[sessionID] = data
	n := len(m.states)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.states, sessionID)
	n := len(m.states)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return nil
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// SessionManager runs turns for many sessions. Turns of one session are
// serialized; different sessions proceed in parallel.
type SessionManager struct {
	engine   *Engine
	store    SessionStore
	recorder TurnRecorder

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// NewSessionManager wires the engine to a store. recorder may be nil.
func NewSessionManager(engine *Engine, store SessionStore, recorder TurnRecorder) *SessionManager {
	return &SessionManager{
		engine:   engine,
		store:    store,
		recorder: recorder,
		locks:    make(map[string]*sessionLock),
	}
}

func (m *SessionManager) lock(sessionID string) func() {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.mu.Unlock()
	}
}

func (m *SessionManager) Ready() bool {
	return m.engine.Ready()
}

// Chat runs one turn for sessionID and persists the resulting state.
func (m *SessionManager) Chat(ctx context.Context, sessionID, message string, candidates []int64) (Response, error) {
	if !m.engine.Ready() {
		return Response{}, ErrNotReady
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	unlock := m.lock(sessionID)
	defer unlock()

	start := time.Now()
	state, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return Response{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	resp, next, err := m.engine.Turn(ctx, state, message, candidates)
	if err != nil {
		return Response{}, err
	}

	if err := m.store.Save(ctx, sessionID, next); err != nil {
		return Response{}, fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}

	m.record(ctx, sessionID, message, resp, time.Since(start))
	return resp, nil
}

// Reset clears the session's state. Resetting an empty session is not an
// error and returns the same acknowledgement.
func (m *SessionManager) Reset(ctx context.Context, sessionID string) (string, error) {
	ack, _, err := m.engine.Reset()
	if err != nil {
		return "", err
	}
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	unlock := m.lock(sessionID)
	defer unlock()

	if err := m.store.Delete(ctx, sessionID); err != nil {
		return "", fmt.Errorf("failed to reset session %s: %w", sessionID, err)
	}

	logger.Info("Session reset", zap.String("session_id", sessionID))
	return ack, nil
}

// State returns the stored conversation state of a session.
func (m *SessionManager) State(ctx context.Context, sessionID string) (State, error) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return m.store.Load(ctx, sessionID)
}

func (m *SessionManager) record(ctx context.Context, sessionID, message string, resp Response, latency time.Duration) {
	if m.recorder == nil {
		return
	}

	record := &models.TurnRecord{
		ID:                  uuid.New().String(),
		SessionID:           sessionID,
		Message:             message,
		Intent:              resp.Intent.String(),
		Response:            resp.Response,
		RecommendationCount: len(resp.Recommendations),
		LatencyMS:           int(latency.Milliseconds()),
		CreatedAt:           time.Now(),
	}
	if err := m.recorder.InsertTurnRecord(ctx, record); err != nil {
		logger.Warn("Failed to record turn", zap.String("session_id", sessionID), zap.Error(err))
	}
}
