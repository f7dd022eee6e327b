// Package gamemaster holds the in-memory model of the game server and
// turns raw snapshots into semantic change events.
package gamemaster

import (
	"sync"

	"github.com/Lelleck/wise/internal/api"
	"github.com/Lelleck/wise/internal/event"
	"github.com/Lelleck/wise/internal/rcon"
)

// GameMaster is the single source of truth for observed game state.
// Updates are atomic per player; the lock is held only to diff and swap
// one entry.
type GameMaster struct {
	mu      sync.Mutex
	players map[string]rcon.PlayerData
	game    *rcon.GameState
	bus     *event.Bus
}

// New creates an empty game master publishing to bus.
func New(bus *event.Bus) *GameMaster {
	return &GameMaster{
		players: make(map[string]rcon.PlayerData),
		bus:     bus,
	}
}

// UpdatePlayers folds a fresh player snapshot into the model. A player
// seen for the first time is stored silently; for known players the
// changed fields are diffed and published as one event. Records are never
// evicted: a player who leaves keeps their last snapshot until restart.
func (gm *GameMaster) UpdatePlayers(players []rcon.PlayerData) {
	for _, player := range players {
		gm.updatePlayer(player)
	}
}

func (gm *GameMaster) updatePlayer(new rcon.PlayerData) {
	gm.mu.Lock()
	old, known := gm.players[new.ID]
	if !known {
		gm.players[new.ID] = new
		gm.mu.Unlock()
		return
	}

	changes := diffPlayer(old, new)
	if len(changes) == 0 {
		gm.mu.Unlock()
		return
	}
	gm.players[new.ID] = new
	gm.mu.Unlock()

	gm.bus.SendRcon(api.NewPlayerEvent(old, new, changes))
}

// UpdateGameState folds a fresh match snapshot into the model. The first
// observation is published with empty changes so subscribers learn the
// initial state.
func (gm *GameMaster) UpdateGameState(new rcon.GameState) {
	gm.mu.Lock()
	old := gm.game
	gm.game = &new
	gm.mu.Unlock()

	if old == nil {
		gm.bus.SendRcon(api.NewGameEvent([]api.GameStateChange{}, new))
		return
	}

	changes := diffGameState(*old, new)
	if len(changes) == 0 {
		return
	}
	gm.bus.SendRcon(api.NewGameEvent(changes, new))
}

// UpdateLogs forwards every log line verbatim as an event.
func (gm *GameMaster) UpdateLogs(lines []rcon.LogLine) {
	for _, line := range lines {
		gm.bus.SendRcon(api.NewLogEvent(line))
	}
}

// PlayerCount returns the number of tracked players.
func (gm *GameMaster) PlayerCount() int {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	return len(gm.players)
}

// Player returns the last observed snapshot for id.
func (gm *GameMaster) Player(id string) (rcon.PlayerData, bool) {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	p, ok := gm.players[id]
	return p, ok
}

func change(changes []api.PlayerChange, field string, old, new any) []api.PlayerChange {
	if old == new {
		return changes
	}
	return append(changes, api.PlayerChange{Field: field, Old: old, New: new})
}

// diffPlayer lists the changed fields between two snapshots of the same
// player. Identity fields (name, id, platform, eosId) are assumed stable
// within a match; score is deliberately not diffed.
func diffPlayer(old, new rcon.PlayerData) []api.PlayerChange {
	var changes []api.PlayerChange
	changes = change(changes, "ClanTag", old.ClanTag, new.ClanTag)
	changes = change(changes, "Level", old.Level, new.Level)
	changes = change(changes, "Team", old.Team, new.Team)
	changes = change(changes, "Role", old.Role, new.Role)
	changes = change(changes, "Platoon", old.Platoon, new.Platoon)
	changes = change(changes, "Kills", old.Kills, new.Kills)
	changes = change(changes, "Deaths", old.Deaths, new.Deaths)
	changes = change(changes, "WorldPosition", old.WorldPosition, new.WorldPosition)
	changes = change(changes, "Loadout", old.Loadout, new.Loadout)
	return changes
}

func gameChange(changes []api.GameStateChange, field string, old, new any) []api.GameStateChange {
	if old == new {
		return changes
	}
	return append(changes, api.GameStateChange{Field: field, Old: old, New: new})
}

// diffGameState lists the changed fields between two match snapshots.
// The remaining time counts down continuously and is never emitted as a
// change.
func diffGameState(old, new rcon.GameState) []api.GameStateChange {
	var changes []api.GameStateChange
	changes = gameChange(changes, "AlliedPlayers", old.AlliedPlayers, new.AlliedPlayers)
	changes = gameChange(changes, "AxisPlayers", old.AxisPlayers, new.AxisPlayers)
	changes = gameChange(changes, "AlliedScore", old.AlliedScore, new.AlliedScore)
	changes = gameChange(changes, "AxisScore", old.AxisScore, new.AxisScore)
	changes = gameChange(changes, "Map", old.Map, new.Map)
	changes = gameChange(changes, "NextMap", old.NextMap, new.NextMap)
	return changes
}
