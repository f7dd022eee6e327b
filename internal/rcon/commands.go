package rcon

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// FetchPlayers returns the snapshot of every player on the server.
func (s *Session) FetchPlayers() ([]PlayerData, error) {
	resp, err := s.Execute(NewRequestBody("ServerInformation", map[string]string{
		"Name":  "players",
		"Value": "",
	}))
	if err != nil {
		return nil, err
	}
	if err := resp.assertOK(); err != nil {
		return nil, err
	}

	players := gjson.Get(resp.ContentBody, "players")
	if !players.Exists() || !players.IsArray() {
		return nil, fmt.Errorf("%w: missing players array", ErrInvalidJSON)
	}

	var out []PlayerData
	if err := json.Unmarshal([]byte(players.Raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJSON, err)
	}
	return out, nil
}

// FetchPlayer returns the snapshot of a single player by id.
func (s *Session) FetchPlayer(id string) (PlayerData, error) {
	resp, err := s.Execute(NewRequestBody("ServerInformation", map[string]string{
		"Name":  "player",
		"Value": id,
	}))
	if err != nil {
		return PlayerData{}, err
	}
	if err := resp.assertOK(); err != nil {
		return PlayerData{}, err
	}

	var out PlayerData
	if err := json.Unmarshal([]byte(resp.ContentBody), &out); err != nil {
		return PlayerData{}, fmt.Errorf("%w: %s", ErrInvalidJSON, err)
	}
	return out, nil
}

// FetchGameState returns the current match state.
func (s *Session) FetchGameState() (GameState, error) {
	resp, err := s.Execute(NewRequestBody("ServerInformation", map[string]string{
		"Name":  "gamestate",
		"Value": "",
	}))
	if err != nil {
		return GameState{}, err
	}
	if err := resp.assertOK(); err != nil {
		return GameState{}, err
	}

	var out GameState
	if err := json.Unmarshal([]byte(resp.ContentBody), &out); err != nil {
		return GameState{}, fmt.Errorf("%w: %s", ErrInvalidJSON, err)
	}
	return out, nil
}

// FetchShowLog returns the admin log of the last minute. Entries whose
// message does not parse as a known log line are dropped.
func (s *Session) FetchShowLog() ([]LogLine, error) {
	resp, err := s.Execute(NewRequestBody("AdminLog", map[string]any{
		"LogBackTrackTime": "60",
		"Filters":          []string{},
	}))
	if err != nil {
		return nil, err
	}
	if err := resp.assertOK(); err != nil {
		return nil, err
	}

	entries := gjson.Get(resp.ContentBody, "entries")
	if !entries.Exists() || !entries.IsArray() {
		return nil, fmt.Errorf("%w: missing entries array", ErrInvalidJSON)
	}

	var lines []LogLine
	entries.ForEach(func(_, entry gjson.Result) bool {
		message := entry.Get("message")
		if message.Type != gjson.String {
			return true
		}
		lines = append(lines, ParseLogLines(message.String())...)
		return true
	})
	return lines, nil
}

// BroadcastMessage shows a message to every player on the server.
func (s *Session) BroadcastMessage(message string) error {
	return s.fireAndForget(NewRequest("ServerBroadcast", message))
}

// MessagePlayer sends a message to a single player.
func (s *Session) MessagePlayer(id, message string) error {
	return s.fireAndForget(NewRequestBody("MessagePlayer", map[string]string{
		"PlayerId": id,
		"Message":  message,
	}))
}

// PunishPlayer kills a player with the given reason.
func (s *Session) PunishPlayer(id, reason string) error {
	return s.fireAndForget(NewRequestBody("PunishPlayer", map[string]string{
		"PlayerId": id,
		"Reason":   reason,
	}))
}

// KickPlayer removes a player from the server.
func (s *Session) KickPlayer(id, reason string) error {
	return s.fireAndForget(NewRequestBody("Kick", map[string]string{
		"PlayerId": id,
		"Reason":   reason,
	}))
}

// TempBan is not part of the v2 command surface yet.
func (s *Session) TempBan(id, reason string) error {
	return ErrNotImplemented
}

// RemoveTempBan is not part of the v2 command surface yet.
func (s *Session) RemoveTempBan(id string) error {
	return ErrNotImplemented
}

func (s *Session) fireAndForget(req *Request) error {
	resp, err := s.Execute(req)
	if err != nil {
		return err
	}
	return resp.assertOK()
}
