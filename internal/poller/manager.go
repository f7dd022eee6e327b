// Package poller runs the periodic fetch loops and supervises their
// lifecycle.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Lelleck/wise/internal/config"
	"github.com/Lelleck/wise/internal/gamemaster"
	"github.com/Lelleck/wise/internal/pool"
	"github.com/Lelleck/wise/internal/rcon"
)

// Manager supervises all pollers: it allocates their ids, keeps their
// cancel functions and maps connected players to their pollers. The
// showlog poller calls back into the manager to start and stop player
// pollers, so the manager is shared by pointer and all maps are guarded.
type Manager struct {
	ids atomic.Uint64

	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc
	players map[rcon.Player]uint64

	store *config.Store
	pool  *pool.Pool
	gm    *gamemaster.GameMaster
}

// NewManager creates a manager without any running pollers.
func NewManager(store *config.Store, p *pool.Pool, gm *gamemaster.GameMaster) *Manager {
	return &Manager{
		cancels: make(map[uint64]context.CancelFunc),
		players: make(map[rcon.Player]uint64),
		store:   store,
		pool:    p,
		gm:      gm,
	}
}

// Resume starts the full polling set: one player poller per player
// currently on the server (spaced by the configured cooldown so the pool
// does not allocate a burst of sessions), then the aggregate players,
// showlog and gamestate pollers.
func (m *Manager) Resume(ctx context.Context) error {
	slog.Debug("resuming global polling")

	players, err := pool.Run(ctx, m.pool, func(s *rcon.Session) ([]rcon.PlayerData, error) {
		return s.FetchPlayers()
	})
	if err != nil {
		return fmt.Errorf("fetching initial players: %w", err)
	}

	cooldown := m.store.Get().Polling.Cooldown()
	slog.Debug("starting player pollers", "count", len(players))
	for _, data := range players {
		id, ok := rcon.ParsePlayerID(data.ID)
		if !ok {
			slog.Warn("skipping player with unparseable id", "name", data.Name)
			continue
		}
		m.StartPlayerPoller(ctx, rcon.Player{Name: data.Name, ID: id})

		timer := time.NewTimer(cooldown)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	m.spawn(ctx, "players", m.pollPlayers)
	m.spawn(ctx, "showlog", m.pollShowLog)
	m.spawn(ctx, "gamestate", m.pollGameState)
	return nil
}

// StartPlayerPoller begins polling a player unless one is already
// running for them.
func (m *Manager) StartPlayerPoller(ctx context.Context, player rcon.Player) {
	m.mu.Lock()
	if _, running := m.players[player]; running {
		m.mu.Unlock()
		return
	}
	// Reserve the slot before spawning so a concurrent start is a no-op.
	m.players[player] = 0
	m.mu.Unlock()

	id := m.spawn(ctx, "player", func(ctx context.Context, id uint64) {
		m.pollPlayer(ctx, id, player)
	})

	m.mu.Lock()
	m.players[player] = id
	m.mu.Unlock()
}

// StopPlayerPoller cancels the poller for a player, if any.
func (m *Manager) StopPlayerPoller(player rcon.Player) {
	m.mu.Lock()
	id, ok := m.players[player]
	if !ok {
		m.mu.Unlock()
		slog.Warn("no poller registered for player", "player", player.String())
		return
	}
	delete(m.players, player)
	cancel := m.cancels[id]
	delete(m.cancels, id)
	m.mu.Unlock()

	if cancel != nil {
		slog.Debug("cancelling poller", "id", id)
		cancel()
	}
}

// StopAll cancels every running poller.
func (m *Manager) StopAll() {
	m.mu.Lock()
	cancels := m.cancels
	m.cancels = make(map[uint64]context.CancelFunc)
	m.players = make(map[rcon.Player]uint64)
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// PollerCount returns the number of registered pollers.
func (m *Manager) PollerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancels)
}

// spawn registers a poller under a fresh id and runs it until it returns
// or its context is cancelled. Cancellation is cooperative: pollers check
// between iterations, an ongoing fetch completes first.
func (m *Manager) spawn(ctx context.Context, name string, run func(context.Context, uint64)) uint64 {
	id := m.ids.Add(1)
	pollCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancels[id] = cancel
	m.mu.Unlock()
	slog.Debug("registered poller", "name", name, "id", id)

	go func() {
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.cancels, id)
			m.mu.Unlock()
		}()
		run(pollCtx, id)
	}()
	return id
}
