package assistant

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restaurant-agent/backend/internal/storage/models"
)

type recorderFunc func(ctx context.Context, record *models.TurnRecord) error

func (f recorderFunc) InsertTurnRecord(ctx context.Context, record *models.TurnRecord) error {
	return f(ctx, record)
}

func TestSessionManager_PersistsStatePerSession(t *testing.T) {
	caps := newTestCaps("other")
	caps.generator.GenerateFunc = func(_ context.Context, h History, _ int) (string, error) {
		return strconv.Itoa(h.Len()), nil
	}
	store := NewMemoryStore()
	m := NewSessionManager(newReadyEngine(t, caps), store, nil)
	ctx := context.Background()

	resp, err := m.Chat(ctx, "alice", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", resp.Response)

	resp, err = m.Chat(ctx, "alice", "still there?", nil)
	require.NoError(t, err)
	assert.Equal(t, "3", resp.Response)

	resp, err = m.Chat(ctx, "bob", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", resp.Response, "sessions do not share history")

	state, err := m.State(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, state.History.Len())
}

func TestSessionManager_ResetIsIdempotent(t *testing.T) {
	m := NewSessionManager(newReadyEngine(t, newTestCaps("other")), NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := m.Chat(ctx, "", "hello", nil)
	require.NoError(t, err)
	state, err := m.State(ctx, DefaultSessionID)
	require.NoError(t, err)
	require.False(t, state.Idle())

	for i := 0; i < 2; i++ {
		ack, err := m.Reset(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, ResetAck, ack)

		state, err := m.State(ctx, DefaultSessionID)
		require.NoError(t, err)
		assert.True(t, state.Idle())
	}
}

func TestSessionManager_NotReady(t *testing.T) {
	m := NewSessionManager(New(testCorpus(t), DefaultConfig()), NewMemoryStore(), nil)

	_, err := m.Chat(context.Background(), "s1", "hello", nil)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = m.Reset(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, m.Ready())
}

func TestSessionManager_SerializesTurnsOfOneSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History = HistoryWindow{}
	e := New(testCorpus(t), cfg)
	require.NoError(t, e.Load(newTestCaps("other").capabilities()))
	m := NewSessionManager(e, NewMemoryStore(), nil)

	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Chat(context.Background(), "shared", "message "+strconv.Itoa(i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := m.State(context.Background(), "shared")
	require.NoError(t, err)
	assert.Equal(t, 2*turns, state.History.Len())
	assert.Empty(t, m.locks)
}

func TestSessionManager_RecordsTurns(t *testing.T) {
	var records []*models.TurnRecord
	recorder := recorderFunc(func(_ context.Context, r *models.TurnRecord) error {
		records = append(records, r)
		return nil
	})
	m := NewSessionManager(newReadyEngine(t, newTestCaps("recommendation")), NewMemoryStore(), recorder)

	_, err := m.Chat(context.Background(), "s1", "pizza", []int64{12, 45})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "s1", records[0].SessionID)
	assert.Equal(t, "recommendation", records[0].Intent)
	assert.Equal(t, 2, records[0].RecommendationCount)
	assert.NotEmpty(t, records[0].ID)
}

func TestSessionManager_RecorderFailureDoesNotFailTurn(t *testing.T) {
	recorder := recorderFunc(func(context.Context, *models.TurnRecord) error {
		return errors.New("database is locked")
	})
	m := NewSessionManager(newReadyEngine(t, newTestCaps("other")), NewMemoryStore(), recorder)

	resp, err := m.Chat(context.Background(), "s1", "hello", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Response)
}

type failingStore struct {
	*MemoryStore
	saveErr error
}

func (f failingStore) Save(context.Context, string, State) error {
	return f.saveErr
}

func TestSessionManager_SaveFailure(t *testing.T) {
	store := failingStore{MemoryStore: NewMemoryStore(), saveErr: errors.New("redis down")}
	m := NewSessionManager(newReadyEngine(t, newTestCaps("other")), store, nil)

	_, err := m.Chat(context.Background(), "s1", "hello", nil)
	assert.ErrorContains(t, err, "failed to save session s1")
}

func TestStateEncoding_Versioned(t *testing.T) {
	data, err := EncodeState(State{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"history":[]}`, string(data))

	_, err = DecodeState([]byte(`{"v":2,"history":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedStateVersion)

	_, err = DecodeState([]byte(`tensor([1, 2])`))
	assert.Error(t, err)
}
