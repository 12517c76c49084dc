package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
)

const stateVersion = 1

var ErrUnsupportedStateVersion = errors.New("unsupported conversation state version")

type stateEnvelope struct {
	Version             int                 `json:"v"`
	History             []Turn              `json:"history"`
	LastRecommendations []RestaurantSummary `json:"last_recommendations,omitempty"`
}

// EncodeState serializes state as versioned JSON for a SessionStore.
func EncodeState(s State) ([]byte, error) {
	env := stateEnvelope{
		Version:             stateVersion,
		History:             s.History.Turns,
		LastRecommendations: s.LastRecommendations,
	}
	if env.History == nil {
		env.History = []Turn{}
	}
	return json.Marshal(env)
}

func DecodeState(data []byte) (State, error) {
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return State{}, fmt.Errorf("failed to decode conversation state: %w", err)
	}
	if env.Version != stateVersion {
		return State{}, fmt.Errorf("%w: %d", ErrUnsupportedStateVersion, env.Version)
	}
	return State{
		History:             History{Turns: env.History},
		LastRecommendations: env.LastRecommendations,
	}, nil
}
