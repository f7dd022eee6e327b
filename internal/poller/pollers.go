package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Lelleck/wise/internal/pool"
	"github.com/Lelleck/wise/internal/rcon"
)

const (
	playersPeriod = 100 * time.Millisecond
	showlogPeriod = time.Second
)

// tickFailed logs a per-tick error and reports whether the poller should
// terminate. Unrecoverable pool errors end the poller; everything else is
// transient and the loop continues.
func tickFailed(ctx context.Context, id uint64, name string, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var unrecoverable *pool.UnrecoverableError
	if errors.As(err, &unrecoverable) {
		slog.Error("poller hit unrecoverable error, stopping", "poller", id, "name", name, "err", err)
		return true
	}
	slog.Debug("poller tick failed", "poller", id, "name", name, "err", err)
	return false
}

// pollPlayers fetches the full player list every 100ms and feeds it to
// the game master.
func (m *Manager) pollPlayers(ctx context.Context, id uint64) {
	w := newWaiter()
	for {
		if err := w.wait(ctx, playersPeriod); err != nil {
			return
		}
		players, err := pool.Run(ctx, m.pool, func(s *rcon.Session) ([]rcon.PlayerData, error) {
			return s.FetchPlayers()
		})
		if err != nil {
			if tickFailed(ctx, id, "players", err) {
				return
			}
			continue
		}
		m.gm.UpdatePlayers(players)
	}
}

// pollPlayer fetches one player at the configured period. Used per
// connected player so individual snapshots stay fresh between full list
// fetches.
func (m *Manager) pollPlayer(ctx context.Context, id uint64, player rcon.Player) {
	slog.Debug("starting player poller", "poller", id, "player", player.String())
	w := newWaiter()
	for {
		if err := w.wait(ctx, m.store.Get().Polling.Wait()); err != nil {
			return
		}
		playerID := player.ID.String()
		data, err := pool.Run(ctx, m.pool, func(s *rcon.Session) (rcon.PlayerData, error) {
			return s.FetchPlayer(playerID)
		})
		if err != nil {
			if tickFailed(ctx, id, "player", err) {
				return
			}
			continue
		}
		m.gm.UpdatePlayers([]rcon.PlayerData{data})
	}
}

// pollGameState fetches the match state at the configured period.
func (m *Manager) pollGameState(ctx context.Context, id uint64) {
	w := newWaiter()
	for {
		if err := w.wait(ctx, m.store.Get().Polling.Wait()); err != nil {
			return
		}
		state, err := pool.Run(ctx, m.pool, func(s *rcon.Session) (rcon.GameState, error) {
			return s.FetchGameState()
		})
		if err != nil {
			if tickFailed(ctx, id, "gamestate", err) {
				return
			}
			continue
		}
		m.gm.UpdateGameState(state)
	}
}

// pollShowLog fetches the admin log every second, publishes lines not
// seen before and drives the per-player poller lifecycle from connect
// and disconnect entries.
func (m *Manager) pollShowLog(ctx context.Context, id uint64) {
	w := newWaiter()
	window := newLogWindow()
	for {
		if err := w.wait(ctx, showlogPeriod); err != nil {
			return
		}
		lines, err := pool.Run(ctx, m.pool, func(s *rcon.Session) ([]rcon.LogLine, error) {
			return s.FetchShowLog()
		})
		if err != nil {
			if tickFailed(ctx, id, "showlog", err) {
				return
			}
			continue
		}

		untracked := window.merge(lines, uint64(time.Now().Unix()))
		m.gm.UpdateLogs(untracked)

		if !m.store.Get().Polling.ManagePlayers {
			continue
		}
		for _, line := range untracked {
			connect, ok := line.Kind.(rcon.ConnectKind)
			if !ok {
				continue
			}
			if connect.HasConnected {
				slog.Debug("player connected, starting poller", "player", connect.Player.String())
				m.StartPlayerPoller(ctx, connect.Player)
			} else {
				slog.Debug("player disconnected, stopping poller", "player", connect.Player.String())
				m.StopPlayerPoller(connect.Player)
			}
		}
	}
}
