package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lelleck/wise/internal/api"
	"github.com/Lelleck/wise/internal/pool"
	"github.com/Lelleck/wise/internal/rcon"
)

// dispatch maps one client request onto a typed session call and routes
// the result back through the bus under the client-supplied id. Requests
// without an id never produce a response.
func (s *Server) dispatch(ctx context.Context, connID string, req api.ClientRequest) {
	response, err := s.execute(ctx, *req.Value.Execute)
	var failure *rcon.FailureError
	if errors.As(err, &failure) {
		// The game server answered with a FAIL status: that is a command
		// result, not a failed dispatch.
		response, err = api.ErrorResponse(failure.Error()), nil
	}
	if err != nil {
		slog.Debug("command dispatch failed", "connection", connID, "err", err)
	}

	if req.ID == nil {
		return
	}
	s.bus.SendResponse(*req.ID, api.ServerWsResponse{
		Execute: &api.ExecuteResponse{
			Failure:  err != nil,
			Response: response,
		},
	})
}

func (s *Server) execute(ctx context.Context, kind api.CommandRequestKind) (*api.CommandResponseKind, error) {
	switch {
	case kind.Raw != nil:
		raw := *kind.Raw
		resp, err := pool.Run(ctx, s.pool, func(sess *rcon.Session) (*rcon.Response, error) {
			return sess.Execute(rcon.NewRequest(raw.Name, raw.ContentBody))
		})
		if err != nil {
			return nil, err
		}
		return &api.CommandResponseKind{Raw: resp}, nil

	case kind.GetGameState:
		state, err := pool.Run(ctx, s.pool, func(sess *rcon.Session) (rcon.GameState, error) {
			return sess.FetchGameState()
		})
		if err != nil {
			return nil, err
		}
		return &api.CommandResponseKind{GetGameState: &state}, nil

	case kind.GetPlayers:
		players, err := pool.Run(ctx, s.pool, func(sess *rcon.Session) ([]rcon.PlayerData, error) {
			return sess.FetchPlayers()
		})
		if err != nil {
			return nil, err
		}
		return &api.CommandResponseKind{GetPlayers: &players}, nil

	case kind.GetPlayer != nil:
		id := *kind.GetPlayer
		player, err := pool.Run(ctx, s.pool, func(sess *rcon.Session) (rcon.PlayerData, error) {
			return sess.FetchPlayer(id)
		})
		if err != nil {
			return nil, err
		}
		return &api.CommandResponseKind{GetPlayer: &player}, nil

	case kind.Broadcast != nil:
		message := *kind.Broadcast
		err := s.pool.Execute(ctx, func(sess *rcon.Session) error {
			return sess.BroadcastMessage(message)
		})
		if err != nil {
			return nil, err
		}
		return api.SuccessResponse(), nil

	case kind.MessagePlayer != nil:
		id, message := kind.MessagePlayer[0], kind.MessagePlayer[1]
		err := s.pool.Execute(ctx, func(sess *rcon.Session) error {
			return sess.MessagePlayer(id, message)
		})
		if err != nil {
			return nil, err
		}
		return api.SuccessResponse(), nil

	case kind.PunishPlayer != nil:
		id, reason := kind.PunishPlayer[0], kind.PunishPlayer[1]
		err := s.pool.Execute(ctx, func(sess *rcon.Session) error {
			return sess.PunishPlayer(id, reason)
		})
		if err != nil {
			return nil, err
		}
		return api.SuccessResponse(), nil

	case kind.KickPlayer != nil:
		id, reason := kind.KickPlayer[0], kind.KickPlayer[1]
		err := s.pool.Execute(ctx, func(sess *rcon.Session) error {
			return sess.KickPlayer(id, reason)
		})
		if err != nil {
			return nil, err
		}
		return api.SuccessResponse(), nil

	case kind.TemporaryBan || kind.RemoveTemporaryBan:
		return nil, rcon.ErrNotImplemented

	default:
		return nil, fmt.Errorf("empty command request")
	}
}
