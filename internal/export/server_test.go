package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lelleck/wise/internal/api"
	"github.com/Lelleck/wise/internal/config"
	"github.com/Lelleck/wise/internal/event"
	"github.com/Lelleck/wise/internal/pool"
	"github.com/Lelleck/wise/internal/rcon"
	"github.com/Lelleck/wise/internal/rcon/rcontest"
)

type testSetup struct {
	server *Server
	bus    *event.Bus
	game   *rcontest.Server
	url    string
}

func setupTestServer(t *testing.T, tokens []config.TokenConfig, wsPassword string) *testSetup {
	t.Helper()

	game := rcontest.Start(t)
	store := config.NewStore(&config.Config{
		Rcon: config.RconConfig{Address: game.Addr(), Password: "pw"},
		Auth: config.AuthConfig{Tokens: tokens},
		Exporting: config.ExportingConfig{
			Websocket: config.WebsocketConfig{
				Enabled:  true,
				Password: wsPassword,
			},
		},
	})

	bus := event.New(event.DefaultCapacity)
	server := New(store, bus, pool.New(store), nil)

	httpServer := httptest.NewServer(http.HandlerFunc(server.websocketHandler))
	t.Cleanup(httpServer.Close)

	return &testSetup{server: server, bus: bus, game: game, url: httpServer.URL}
}

func fullAccessToken() []config.TokenConfig {
	return []config.TokenConfig{{
		Name:  "admin",
		Value: "secret",
		Perms: config.AuthPerms{ReadRconEvents: true, WriteRcon: true},
	}}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	conn.SetReadLimit(1 << 20)
	return conn
}

func sendText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(text)))
}

func readMessage(t *testing.T, conn *websocket.Conn) api.ServerWsMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	kind, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, kind)

	var msg api.ServerWsMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func authenticate(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()
	sendText(t, conn, token)
	msg := readMessage(t, conn)
	require.True(t, msg.Authenticated, "expected an Authenticated frame")
}

func assertConnectionDies(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err)
}

func TestTokenHandshake(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	conn := dial(t, setup.url)
	authenticate(t, conn, "secret")
}

func TestUnknownTokenIsDroppedSilently(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	conn := dial(t, setup.url)

	sendText(t, conn, "not the token")
	assertConnectionDies(t, conn)
}

func TestTokenMatchIsCaseSensitive(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	conn := dial(t, setup.url)

	sendText(t, conn, "SECRET")
	assertConnectionDies(t, conn)
}

func TestBinaryTokenFrameIsRejected(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	conn := dial(t, setup.url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte("secret")))
	assertConnectionDies(t, conn)
}

func TestPasswordHandshake(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "ws-pass")
	conn := dial(t, setup.url)

	sendText(t, conn, "ws-pass")
	authenticate(t, conn, "secret")
}

func TestWrongPasswordIsDropped(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "ws-pass")
	conn := dial(t, setup.url)

	sendText(t, conn, "wrong")
	sendText(t, conn, "secret")
	assertConnectionDies(t, conn)
}

func TestEventFanOut(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	conn := dial(t, setup.url)
	authenticate(t, conn, "secret")

	// The subscription is created during the handshake; a short settle
	// avoids racing the first send past it.
	time.Sleep(50 * time.Millisecond)
	setup.bus.SendRcon(api.NewLogEvent(rcon.LogLine{
		Timestamp: 1718212472,
		Kind:      rcon.MatchStartKind{Map: "FOY"},
	}))

	msg := readMessage(t, conn)
	require.NotNil(t, msg.Rcon)
	require.NotNil(t, msg.Rcon.Log)
	assert.Equal(t, uint64(1718212472), msg.Rcon.Log.Timestamp)
}

func TestAuthGate(t *testing.T) {
	// readRconEvents=false hides events, writeRcon=true allows commands.
	setup := setupTestServer(t, []config.TokenConfig{{
		Name:  "writer",
		Value: "write-only",
		Perms: config.AuthPerms{ReadRconEvents: false, WriteRcon: true},
	}}, "")
	conn := dial(t, setup.url)
	authenticate(t, conn, "write-only")

	time.Sleep(50 * time.Millisecond)
	setup.bus.SendRcon(api.NewLogEvent(rcon.LogLine{
		Timestamp: 1, Kind: rcon.MatchStartKind{Map: "FOY"},
	}))

	sendText(t, conn, `{"Request":{"id":"req-1","value":{"Execute":{"Broadcast":"hi"}}}}`)

	// The rcon event is filtered; the first delivered frame is the
	// command response.
	msg := readMessage(t, conn)
	require.NotNil(t, msg.Response)
	assert.Equal(t, "req-1", msg.Response.ID)
	require.NotNil(t, msg.Response.Value.Execute)
	assert.False(t, msg.Response.Value.Execute.Failure)
	require.NotNil(t, msg.Response.Value.Execute.Response)
	assert.True(t, msg.Response.Value.Execute.Response.Success)
}

func TestDispatchGetPlayers(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	setup.game.SetOnCommand(func(name, body string) (int, string) {
		players, _ := json.Marshal(map[string]any{
			"players": []rcon.PlayerData{{ID: "u1", Name: "Alice", Kills: 3}},
		})
		return 200, string(players)
	})

	conn := dial(t, setup.url)
	authenticate(t, conn, "secret")

	sendText(t, conn, `{"Request":{"id":"req-2","value":{"Execute":"GetPlayers"}}}`)

	msg := readMessage(t, conn)
	require.NotNil(t, msg.Response)
	result := msg.Response.Value.Execute.Response
	require.NotNil(t, result)
	require.NotNil(t, result.GetPlayers)
	require.Len(t, *result.GetPlayers, 1)
	assert.Equal(t, "Alice", (*result.GetPlayers)[0].Name)
}

func TestDispatchRawCommand(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	setup.game.SetOnCommand(func(name, body string) (int, string) {
		if name == "SomeCommand" {
			return 200, "raw result"
		}
		return 404, ""
	})

	conn := dial(t, setup.url)
	authenticate(t, conn, "secret")

	sendText(t, conn, `{"Request":{"id":"req-3","value":{"Execute":{"Raw":{"name":"SomeCommand","contentBody":""}}}}}`)

	msg := readMessage(t, conn)
	result := msg.Response.Value.Execute.Response
	require.NotNil(t, result)
	require.NotNil(t, result.Raw)
	assert.Equal(t, "raw result", result.Raw.ContentBody)
}

func TestDispatchNotImplementedCommand(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	conn := dial(t, setup.url)
	authenticate(t, conn, "secret")

	sendText(t, conn, `{"Request":{"id":"req-4","value":{"Execute":"TemporaryBan"}}}`)

	msg := readMessage(t, conn)
	require.NotNil(t, msg.Response)
	assert.True(t, msg.Response.Value.Execute.Failure)
	assert.Nil(t, msg.Response.Value.Execute.Response)
}

func TestWriteWithoutPermissionIsIgnored(t *testing.T) {
	setup := setupTestServer(t, []config.TokenConfig{{
		Name:  "reader",
		Value: "read-only",
		Perms: config.AuthPerms{ReadRconEvents: true, WriteRcon: false},
	}}, "")
	conn := dial(t, setup.url)
	authenticate(t, conn, "read-only")

	sendText(t, conn, `{"Request":{"id":"req-5","value":{"Execute":{"Broadcast":"hi"}}}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := conn.Read(ctx)
	assert.Error(t, err)
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	conn := dial(t, setup.url)
	authenticate(t, conn, "secret")

	sendText(t, conn, "this is not json")
	sendText(t, conn, `{"Unknown":{}}`)

	// The connection survives and still dispatches afterwards.
	sendText(t, conn, `{"Request":{"id":"req-6","value":{"Execute":{"Broadcast":"hi"}}}}`)
	msg := readMessage(t, conn)
	require.NotNil(t, msg.Response)
	assert.Equal(t, "req-6", msg.Response.ID)
}

func TestRequestWithoutIDGetsNoResponse(t *testing.T) {
	setup := setupTestServer(t, fullAccessToken(), "")
	conn := dial(t, setup.url)
	authenticate(t, conn, "secret")

	sendText(t, conn, `{"Request":{"id":null,"value":{"Execute":{"Broadcast":"quiet"}}}}`)
	sendText(t, conn, `{"Request":{"id":"req-7","value":{"Execute":{"Broadcast":"loud"}}}}`)

	msg := readMessage(t, conn)
	require.NotNil(t, msg.Response)
	assert.Equal(t, "req-7", msg.Response.ID)
}

func TestDispatchFailureOnDeadGameServer(t *testing.T) {
	// The pool points at a dead address while the websocket surface is
	// live, so every dispatch exhausts its retries.
	store := config.NewStore(&config.Config{
		Rcon: config.RconConfig{Address: "127.0.0.1:1", Password: "pw"},
		Auth: config.AuthConfig{Tokens: fullAccessToken()},
		Exporting: config.ExportingConfig{
			Websocket: config.WebsocketConfig{Enabled: true},
		},
	})
	bus := event.New(event.DefaultCapacity)
	server := New(store, bus, pool.New(store), nil)
	httpServer := httptest.NewServer(http.HandlerFunc(server.websocketHandler))
	t.Cleanup(httpServer.Close)

	conn := dial(t, httpServer.URL)
	authenticate(t, conn, "secret")

	sendText(t, conn, `{"Request":{"id":"req-8","value":{"Execute":{"Broadcast":"hi"}}}}`)

	msg := readMessage(t, conn)
	require.NotNil(t, msg.Response)
	assert.True(t, msg.Response.Value.Execute.Failure)
	assert.Nil(t, msg.Response.Value.Execute.Response)
}

func TestRunDisabledReturnsImmediately(t *testing.T) {
	store := config.NewStore(&config.Config{})
	server := New(store, event.New(10), pool.New(store), nil)
	assert.NoError(t, server.Run(context.Background()))
}
