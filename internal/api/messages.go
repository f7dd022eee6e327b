package api

import (
	"encoding/json"
	"fmt"

	"github.com/Lelleck/wise/internal/rcon"
)

// ServerWsMessage is any frame the server pushes to a client.
type ServerWsMessage struct {
	Rcon          *RconEvent
	Response      *ServerResponse
	Authenticated bool
}

// ServerResponse answers a client request by its id.
type ServerResponse struct {
	ID    string           `json:"id"`
	Value ServerWsResponse `json:"value"`
}

// NewRconMessage wraps an event for the wire.
func NewRconMessage(event RconEvent) ServerWsMessage {
	return ServerWsMessage{Rcon: &event}
}

// NewResponseMessage wraps a request response for the wire.
func NewResponseMessage(id string, value ServerWsResponse) ServerWsMessage {
	return ServerWsMessage{Response: &ServerResponse{ID: id, Value: value}}
}

// NewAuthenticatedMessage is the frame sent after a successful token
// handshake.
func NewAuthenticatedMessage() ServerWsMessage {
	return ServerWsMessage{Authenticated: true}
}

func (m ServerWsMessage) MarshalJSON() ([]byte, error) {
	switch {
	case m.Rcon != nil:
		return taggedMarshal("Rcon", m.Rcon)
	case m.Response != nil:
		return taggedMarshal("Response", m.Response)
	case m.Authenticated:
		return taggedMarshal("Authenticated", nil)
	default:
		return nil, fmt.Errorf("server message has no variant set")
	}
}

func (m *ServerWsMessage) UnmarshalJSON(data []byte) error {
	tag, body, err := taggedUnmarshal(data)
	if err != nil {
		return err
	}
	*m = ServerWsMessage{}
	switch tag {
	case "Rcon":
		m.Rcon = &RconEvent{}
		return json.Unmarshal(body, m.Rcon)
	case "Response":
		m.Response = &ServerResponse{}
		return json.Unmarshal(body, m.Response)
	case "Authenticated":
		m.Authenticated = true
		return nil
	default:
		return fmt.Errorf("unknown server message tag %q", tag)
	}
}

// ServerWsResponse is the payload of a Response frame. Execute is its only
// variant.
type ServerWsResponse struct {
	Execute *ExecuteResponse
}

// ExecuteResponse reports the outcome of a dispatched command. Failure is
// set when the request could not be fulfilled at all; a FAIL answer from
// the game server is not a failure.
type ExecuteResponse struct {
	Failure  bool                 `json:"failure"`
	Response *CommandResponseKind `json:"response"`
}

func (r ServerWsResponse) MarshalJSON() ([]byte, error) {
	if r.Execute == nil {
		return nil, fmt.Errorf("server response has no variant set")
	}
	return taggedMarshal("Execute", r.Execute)
}

func (r *ServerWsResponse) UnmarshalJSON(data []byte) error {
	tag, body, err := taggedUnmarshal(data)
	if err != nil {
		return err
	}
	if tag != "Execute" {
		return fmt.Errorf("unknown server response tag %q", tag)
	}
	r.Execute = &ExecuteResponse{}
	return json.Unmarshal(body, r.Execute)
}

// CommandResponseKind is the typed result of one command.
type CommandResponseKind struct {
	Raw          *rcon.Response
	GetGameState *rcon.GameState
	GetPlayers   *[]rcon.PlayerData
	GetPlayer    *rcon.PlayerData
	Success      bool
	Error        *string
}

// SuccessResponse is the response for fire-and-forget commands.
func SuccessResponse() *CommandResponseKind {
	return &CommandResponseKind{Success: true}
}

// ErrorResponse carries a command-level error message.
func ErrorResponse(msg string) *CommandResponseKind {
	return &CommandResponseKind{Error: &msg}
}

func (k CommandResponseKind) MarshalJSON() ([]byte, error) {
	switch {
	case k.Raw != nil:
		return taggedMarshal("Raw", k.Raw)
	case k.GetGameState != nil:
		return taggedMarshal("GetGameState", k.GetGameState)
	case k.GetPlayers != nil:
		return taggedMarshal("GetPlayers", k.GetPlayers)
	case k.GetPlayer != nil:
		return taggedMarshal("GetPlayer", k.GetPlayer)
	case k.Success:
		return taggedMarshal("Success", nil)
	case k.Error != nil:
		return taggedMarshal("Error", *k.Error)
	default:
		return nil, fmt.Errorf("command response has no variant set")
	}
}

func (k *CommandResponseKind) UnmarshalJSON(data []byte) error {
	tag, body, err := taggedUnmarshal(data)
	if err != nil {
		return err
	}
	*k = CommandResponseKind{}
	switch tag {
	case "Raw":
		k.Raw = &rcon.Response{}
		return json.Unmarshal(body, k.Raw)
	case "GetGameState":
		k.GetGameState = &rcon.GameState{}
		return json.Unmarshal(body, k.GetGameState)
	case "GetPlayers":
		k.GetPlayers = &[]rcon.PlayerData{}
		return json.Unmarshal(body, k.GetPlayers)
	case "GetPlayer":
		k.GetPlayer = &rcon.PlayerData{}
		return json.Unmarshal(body, k.GetPlayer)
	case "Success":
		k.Success = true
		return nil
	case "Error":
		var msg string
		if err := json.Unmarshal(body, &msg); err != nil {
			return err
		}
		k.Error = &msg
		return nil
	default:
		return fmt.Errorf("unknown command response tag %q", tag)
	}
}

// ClientWsMessage is any frame a client sends after authenticating.
// Request is its only variant.
type ClientWsMessage struct {
	Request *ClientRequest
}

// ClientRequest pairs a request with the client-chosen correlation id.
// Requests without an id receive no response.
type ClientRequest struct {
	ID    *string         `json:"id"`
	Value ClientWsRequest `json:"value"`
}

func (m ClientWsMessage) MarshalJSON() ([]byte, error) {
	if m.Request == nil {
		return nil, fmt.Errorf("client message has no variant set")
	}
	return taggedMarshal("Request", m.Request)
}

func (m *ClientWsMessage) UnmarshalJSON(data []byte) error {
	tag, body, err := taggedUnmarshal(data)
	if err != nil {
		return err
	}
	if tag != "Request" {
		return fmt.Errorf("unknown client message tag %q", tag)
	}
	m.Request = &ClientRequest{}
	return json.Unmarshal(body, m.Request)
}

// ClientWsRequest is the payload of a Request frame. Execute is its only
// variant.
type ClientWsRequest struct {
	Execute *CommandRequestKind
}

func (r ClientWsRequest) MarshalJSON() ([]byte, error) {
	if r.Execute == nil {
		return nil, fmt.Errorf("client request has no variant set")
	}
	return taggedMarshal("Execute", r.Execute)
}

func (r *ClientWsRequest) UnmarshalJSON(data []byte) error {
	tag, body, err := taggedUnmarshal(data)
	if err != nil {
		return err
	}
	if tag != "Execute" {
		return fmt.Errorf("unknown client request tag %q", tag)
	}
	r.Execute = &CommandRequestKind{}
	return json.Unmarshal(body, r.Execute)
}

// RawCommand executes a request on the game server without interpretation.
type RawCommand struct {
	Name        string `json:"name"`
	ContentBody string `json:"contentBody"`
}

// StringPair is a two-element tuple variant body, serialized as a JSON
// array.
type StringPair [2]string

// CommandRequestKind is every command a client may ask the server to run.
type CommandRequestKind struct {
	Raw                *RawCommand
	GetPlayers         bool
	GetGameState       bool
	GetPlayer          *string
	Broadcast          *string
	MessagePlayer      *StringPair
	PunishPlayer       *StringPair
	KickPlayer         *StringPair
	TemporaryBan       bool
	RemoveTemporaryBan bool
}

func (k CommandRequestKind) MarshalJSON() ([]byte, error) {
	switch {
	case k.Raw != nil:
		return taggedMarshal("Raw", k.Raw)
	case k.GetPlayers:
		return taggedMarshal("GetPlayers", nil)
	case k.GetGameState:
		return taggedMarshal("GetGameState", nil)
	case k.GetPlayer != nil:
		return taggedMarshal("GetPlayer", *k.GetPlayer)
	case k.Broadcast != nil:
		return taggedMarshal("Broadcast", *k.Broadcast)
	case k.MessagePlayer != nil:
		return taggedMarshal("MessagePlayer", *k.MessagePlayer)
	case k.PunishPlayer != nil:
		return taggedMarshal("PunishPlayer", *k.PunishPlayer)
	case k.KickPlayer != nil:
		return taggedMarshal("KickPlayer", *k.KickPlayer)
	case k.TemporaryBan:
		return taggedMarshal("TemporaryBan", nil)
	case k.RemoveTemporaryBan:
		return taggedMarshal("RemoveTemporaryBan", nil)
	default:
		return nil, fmt.Errorf("command request has no variant set")
	}
}

func (k *CommandRequestKind) UnmarshalJSON(data []byte) error {
	tag, body, err := taggedUnmarshal(data)
	if err != nil {
		return err
	}
	*k = CommandRequestKind{}
	switch tag {
	case "Raw":
		k.Raw = &RawCommand{}
		return json.Unmarshal(body, k.Raw)
	case "GetPlayers":
		k.GetPlayers = true
		return nil
	case "GetGameState":
		k.GetGameState = true
		return nil
	case "GetPlayer":
		k.GetPlayer = new(string)
		return json.Unmarshal(body, k.GetPlayer)
	case "Broadcast":
		k.Broadcast = new(string)
		return json.Unmarshal(body, k.Broadcast)
	case "MessagePlayer":
		k.MessagePlayer = new(StringPair)
		return json.Unmarshal(body, k.MessagePlayer)
	case "PunishPlayer":
		k.PunishPlayer = new(StringPair)
		return json.Unmarshal(body, k.PunishPlayer)
	case "KickPlayer":
		k.KickPlayer = new(StringPair)
		return json.Unmarshal(body, k.KickPlayer)
	case "TemporaryBan":
		k.TemporaryBan = true
		return nil
	case "RemoveTemporaryBan":
		k.RemoveTemporaryBan = true
		return nil
	default:
		return fmt.Errorf("unknown command request tag %q", tag)
	}
}
