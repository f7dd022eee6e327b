package api

import (
	"encoding/json"
	"fmt"

	"github.com/Lelleck/wise/internal/rcon"
)

// RconEvent is one semantic change observed on the game server.
// Exactly one of the variant pointers is set.
type RconEvent struct {
	Player *PlayerEvent
	Log    *rcon.LogLine
	Game   *GameEvent
}

// PlayerEvent reports changed fields on a single player.
type PlayerEvent struct {
	Old     rcon.PlayerData `json:"old"`
	New     rcon.PlayerData `json:"new"`
	Changes []PlayerChange  `json:"changes"`
}

// GameEvent reports changed fields of the match state. Changes is empty on
// the first observation after startup.
type GameEvent struct {
	Changes  []GameStateChange `json:"changes"`
	NewState rcon.GameState    `json:"new_state"`
}

// NewPlayerEvent wraps a player diff into an event.
func NewPlayerEvent(old, new rcon.PlayerData, changes []PlayerChange) RconEvent {
	return RconEvent{Player: &PlayerEvent{Old: old, New: new, Changes: changes}}
}

// NewLogEvent wraps one log line into an event.
func NewLogEvent(line rcon.LogLine) RconEvent {
	return RconEvent{Log: &line}
}

// NewGameEvent wraps a game state diff into an event.
func NewGameEvent(changes []GameStateChange, state rcon.GameState) RconEvent {
	return RconEvent{Game: &GameEvent{Changes: changes, NewState: state}}
}

func (e RconEvent) MarshalJSON() ([]byte, error) {
	switch {
	case e.Player != nil:
		return taggedMarshal("Player", e.Player)
	case e.Log != nil:
		return taggedMarshal("Log", e.Log)
	case e.Game != nil:
		return taggedMarshal("Game", e.Game)
	default:
		return nil, fmt.Errorf("rcon event has no variant set")
	}
}

func (e *RconEvent) UnmarshalJSON(data []byte) error {
	tag, body, err := taggedUnmarshal(data)
	if err != nil {
		return err
	}
	*e = RconEvent{}
	switch tag {
	case "Player":
		e.Player = &PlayerEvent{}
		return json.Unmarshal(body, e.Player)
	case "Log":
		e.Log = &rcon.LogLine{}
		return json.Unmarshal(body, e.Log)
	case "Game":
		e.Game = &GameEvent{}
		return json.Unmarshal(body, e.Game)
	default:
		return fmt.Errorf("unknown rcon event tag %q", tag)
	}
}

// PlayerChange is one changed player field with its old and new value,
// tagged by field name: {"Kills": {"old": 3, "new": 4}}.
type PlayerChange struct {
	Field string
	Old   any
	New   any
}

// GameStateChange is one changed game state field, same shape as
// PlayerChange.
type GameStateChange struct {
	Field string
	Old   any
	New   any
}

type oldNew struct {
	Old any `json:"old"`
	New any `json:"new"`
}

func (c PlayerChange) MarshalJSON() ([]byte, error) {
	return taggedMarshal(c.Field, oldNew{c.Old, c.New})
}

func (c *PlayerChange) UnmarshalJSON(data []byte) error {
	field, old, new, err := unmarshalChange(data)
	if err != nil {
		return err
	}
	*c = PlayerChange{Field: field, Old: old, New: new}
	return nil
}

func (c GameStateChange) MarshalJSON() ([]byte, error) {
	return taggedMarshal(c.Field, oldNew{c.Old, c.New})
}

func (c *GameStateChange) UnmarshalJSON(data []byte) error {
	field, old, new, err := unmarshalChange(data)
	if err != nil {
		return err
	}
	*c = GameStateChange{Field: field, Old: old, New: new}
	return nil
}

func unmarshalChange(data []byte) (string, any, any, error) {
	tag, body, err := taggedUnmarshal(data)
	if err != nil {
		return "", nil, nil, err
	}
	var pair oldNew
	if err := json.Unmarshal(body, &pair); err != nil {
		return "", nil, nil, err
	}
	return tag, pair.Old, pair.New, nil
}
