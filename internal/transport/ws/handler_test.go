package ws

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"storychain/internal/app"
	"storychain/internal/domain"
	"storychain/internal/protocol"
)

type testConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func newTestServer(t *testing.T) *httptest.Server {
	server, _ := newTestHub(t)
	return server
}

func newTestHub(t *testing.T) (*httptest.Server, *app.Hub) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := app.NewHub(logger)
	server := httptest.NewServer(NewHandler(hub, logger))
	t.Cleanup(func() {
		server.Close()
		hub.Close()
	})
	return server, hub
}

func dial(t *testing.T, server *httptest.Server) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func (c *testConn) send(msgType protocol.MessageType, payload any) {
	c.t.Helper()
	if err := c.conn.WriteJSON(protocol.NewClientMessage(msgType, payload)); err != nil {
		c.t.Fatalf("write %s: %v", msgType, err)
	}
}

// expect reads until a message of msgType arrives and decodes its payload
func (c *testConn) expect(msgType protocol.MessageType, v any) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if env.Type != msgType {
			continue
		}
		if err := env.Decode(v); err != nil {
			c.t.Fatalf("decode %s: %v", msgType, err)
		}
		return
	}
}

func TestWebSocketGame(t *testing.T) {
	server := newTestServer(t)
	ann := dial(t, server)
	bob := dial(t, server)

	ann.send(protocol.MsgCreateRoom, protocol.CreateRoomPayload{
		RoomCode: "abc123",
		Player:   protocol.PlayerPayload{ID: "ignored", Name: "Ann"},
	})
	var created domain.RoomCreatedPayload
	ann.expect(protocol.MsgRoomCreated, &created)
	if created.Room != "ABC123" {
		t.Fatalf("expected room ABC123, got %q", created.Room)
	}
	var annJoined domain.JoinedPayload
	ann.expect(protocol.MsgJoined, &annJoined)
	if annJoined.SID == "ignored" || annJoined.Name != "Ann" {
		t.Fatalf("unexpected joined payload: %+v", annJoined)
	}

	bob.send(protocol.MsgJoinRoom, protocol.JoinRoomPayload{Name: "Bob", Room: "abc123"})
	var bobJoined domain.JoinedPayload
	bob.expect(protocol.MsgJoined, &bobJoined)

	var players []domain.ParticipantInfo
	bob.expect(protocol.MsgPlayerList, &players)
	if len(players) != 2 || players[0].Name != "Ann" || players[1].Name != "Bob" {
		t.Fatalf("unexpected player list: %+v", players)
	}

	// Only the first member may start.
	bob.send(protocol.MsgStartGame, protocol.StartGamePayload{})
	var errPayload protocol.ErrorPayload
	bob.expect(protocol.MsgError, &errPayload)
	if errPayload.Code != protocol.ErrCodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %+v", errPayload)
	}

	ann.send(protocol.MsgStartGame, protocol.StartGamePayload{
		Settings: domain.Settings{Rounds: 2, CharLimit: 10},
	})

	for _, c := range []*testConn{ann, bob} {
		var started domain.GameStartedPayload
		c.expect(protocol.MsgGameStarted, &started)
		if started.Settings.Rounds != 2 {
			t.Fatalf("unexpected settings: %+v", started.Settings)
		}
	}

	for _, c := range []*testConn{ann, bob} {
		var prompt domain.PromptPayload
		c.expect(protocol.MsgPrompt, &prompt)
		if prompt.Round != 0 || prompt.Text != "" {
			t.Fatalf("unexpected opening prompt: %+v", prompt)
		}
		c.send(protocol.MsgSubmitTurn, protocol.TurnPayload{Origin: prompt.Origin, Text: "opening line"})
	}

	for _, c := range []*testConn{ann, bob} {
		var prompt domain.PromptPayload
		c.expect(protocol.MsgPrompt, &prompt)
		if prompt.Round != 1 || prompt.Text != "opening li" {
			t.Fatalf("unexpected second prompt: %+v", prompt)
		}
		c.send(protocol.MsgSubmitTurn, protocol.TurnPayload{Origin: prompt.Origin, Text: "and then something long happened"})
	}

	var results domain.Results
	ann.expect(protocol.MsgResults, &results)
	if len(results.Origins) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(results.Origins))
	}
	for _, origin := range results.Origins {
		turns := results.Stories[origin]
		if len(turns) != 2 {
			t.Fatalf("story %s has %d turns", origin, len(turns))
		}
		if n := len([]rune(turns[1].Text)); n > 10 {
			t.Fatalf("second turn not truncated: %q", turns[1].Text)
		}
		if turns[1].Contributor == origin {
			t.Fatalf("story %s continued by its own author", origin)
		}
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	server := newTestServer(t)
	c := dial(t, server)

	if err := c.conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errPayload protocol.ErrorPayload
	c.expect(protocol.MsgError, &errPayload)
	if errPayload.Code != protocol.ErrCodeInvalidMessage {
		t.Fatalf("expected INVALID_MESSAGE, got %+v", errPayload)
	}

	c.send("cast_vote", nil)
	c.expect(protocol.MsgError, &errPayload)
	if errPayload.Code != protocol.ErrCodeInvalidMessage {
		t.Fatalf("expected INVALID_MESSAGE for unknown type, got %+v", errPayload)
	}

	c.send(protocol.MsgJoinRoom, protocol.JoinRoomPayload{Name: "Cy", Room: "NOPE00"})
	c.expect(protocol.MsgError, &errPayload)
	if errPayload.Code != protocol.ErrCodeRoomNotFound {
		t.Fatalf("expected ROOM_NOT_FOUND, got %+v", errPayload)
	}

	// The connection survives errors.
	c.send(protocol.MsgPing, nil)
	var pong struct{}
	c.expect(protocol.MsgPong, &pong)
}

func TestWebSocketTruncatesLongTurn(t *testing.T) {
	server, hub := newTestHub(t)
	ann := dial(t, server)
	bob := dial(t, server)

	ann.send(protocol.MsgCreateRoom, protocol.CreateRoomPayload{RoomCode: "LONG01", Name: "Ann"})
	var joined domain.JoinedPayload
	ann.expect(protocol.MsgJoined, &joined)
	bob.send(protocol.MsgJoinRoom, protocol.JoinRoomPayload{Name: "Bob", Room: "LONG01"})
	var bobJoined domain.JoinedPayload
	bob.expect(protocol.MsgJoined, &bobJoined)

	ann.send(protocol.MsgStartGame, protocol.StartGamePayload{Settings: domain.Settings{Rounds: 2}})
	maxChars := domain.DefaultLimits().MaxCharLimit
	var started domain.GameStartedPayload
	ann.expect(protocol.MsgGameStarted, &started)
	if started.Settings.CharLimit != maxChars {
		t.Fatalf("expected char limit %d, got %+v", maxChars, started.Settings)
	}

	var annPrompt, bobPrompt domain.PromptPayload
	ann.expect(protocol.MsgPrompt, &annPrompt)
	bob.expect(protocol.MsgPrompt, &bobPrompt)
	bob.send(protocol.MsgSubmitTurn, protocol.TurnPayload{Origin: bobPrompt.Origin, Text: strings.Repeat("a", 20000)})

	var submitted domain.RoundSubmittedPayload
	ann.expect(protocol.MsgRoundSubmitted, &submitted)
	if submitted.From != bobJoined.SID {
		t.Fatalf("expected submission from %s, got %+v", bobJoined.SID, submitted)
	}
	session, err := hub.GetSession("LONG01")
	if err != nil {
		t.Fatalf("room lost: %v", err)
	}
	if n := session.GetPlayerCount(); n != 2 {
		t.Fatalf("expected both players to stay, got %d", n)
	}

	ann.send(protocol.MsgSubmitTurn, protocol.TurnPayload{Origin: annPrompt.Origin, Text: "short"})
	var next domain.PromptPayload
	ann.expect(protocol.MsgPrompt, &next)
	if next.Origin != bobJoined.SID || len([]rune(next.Text)) != maxChars {
		t.Fatalf("expected Bob's story cut to %d characters, got origin %s with %d", maxChars, next.Origin, len([]rune(next.Text)))
	}
	bob.expect(protocol.MsgPrompt, &next)
	if next.Round != 1 {
		t.Fatalf("bob should still be writing, got %+v", next)
	}
}
