package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collab-server/internal/auth"
	"collab-server/internal/collab"
	"collab-server/internal/config"
	"collab-server/internal/handlers"
	"collab-server/internal/models"

	"github.com/gorilla/websocket"
)

// --- Test Suite Setup ---

type testServer struct {
	srv  *httptest.Server
	auth *auth.Service
	hub  *collab.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret")}}
	authService := auth.NewService(cfg)

	hub := collab.NewHub(nil, nil, collab.Options{SendBufferSize: 64})
	go hub.Run()
	t.Cleanup(hub.Stop)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handlers.NewWebSocketHandlers(authService, hub).HandleWebSocket)
	mux.HandleFunc("/healthz", handlers.NewHealthHandlers(hub).Health)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, auth: authService, hub: hub}
}

func (ts *testServer) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func (ts *testServer) dial(t *testing.T, userID, email string) *websocket.Conn {
	t.Helper()

	token, err := ts.auth.IssueToken(&models.Identity{UserID: userID, Email: email}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(token), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event models.EventType, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(models.Envelope{Event: event, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// expectEvent reads frames until the named event arrives.
func expectEvent(t *testing.T, conn *websocket.Conn, event models.EventType) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var env models.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("bad frame %q: %v", frame, err)
		}
		if env.Event == event {
			return env.Data
		}
	}
}

// readEnvelope reads exactly the next frame.
func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("bad frame %q: %v", frame, err)
	}
	return env
}

// --- Handshake Tests ---

func TestHandshakeRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(""), nil)
	if err == nil {
		t.Fatal("expected handshake failure without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL("bogus"), nil)
	if err == nil {
		t.Fatal("expected handshake failure with a bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", resp)
	}
}

// --- End-to-End Collaboration ---

func TestCollaborationScenario(t *testing.T) {
	ts := newTestServer(t)

	a := ts.dial(t, "u1", "u1@example.com")
	sendEnvelope(t, a, models.EventJoinProject, models.JoinProjectPayload{RoomID: "proj-42"})
	data := expectEvent(t, a, models.EventParticipantsUpdate)
	var firstSnapshot models.ParticipantsUpdatePayload
	if err := json.Unmarshal(data, &firstSnapshot); err != nil {
		t.Fatalf("bad participants-update: %v", err)
	}
	if len(firstSnapshot.Participants) != 0 {
		t.Errorf("first joiner should see an empty room, got %d participants", len(firstSnapshot.Participants))
	}

	b := ts.dial(t, "u2", "u2@example.com")
	sendEnvelope(t, b, models.EventJoinProject, models.JoinProjectPayload{RoomID: "proj-42"})

	data = expectEvent(t, a, models.EventUserJoined)
	var joined models.UserJoinedPayload
	if err := json.Unmarshal(data, &joined); err != nil {
		t.Fatalf("bad user-joined: %v", err)
	}
	if joined.UserID != "u2" {
		t.Errorf("expected user-joined for u2, got %q", joined.UserID)
	}

	data = expectEvent(t, b, models.EventParticipantsUpdate)
	var snapshot models.ParticipantsUpdatePayload
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.Fatalf("bad participants-update: %v", err)
	}
	if len(snapshot.Participants) != 1 || snapshot.Participants[0].UserID != "u1" {
		t.Fatalf("expected snapshot of [u1], got %+v", snapshot.Participants)
	}
	if snapshot.Participants[0].Cursor != nil || snapshot.Participants[0].Selection != "" {
		t.Errorf("fresh participant should have no cursor or selection")
	}

	sendEnvelope(t, a, models.EventCursorMove, models.Cursor{X: 10, Y: 20})

	data = expectEvent(t, b, models.EventCursorUpdate)
	var cursorUpdate models.CursorUpdatePayload
	if err := json.Unmarshal(data, &cursorUpdate); err != nil {
		t.Fatalf("bad cursor-update: %v", err)
	}
	if cursorUpdate.UserID != "u1" || cursorUpdate.Cursor.X != 10 || cursorUpdate.Cursor.Y != 20 {
		t.Errorf("unexpected cursor-update %+v", cursorUpdate)
	}

	b.Close()

	// Frames to one connection arrive in order, so if the sender had been
	// echoed its own cursor-update it would arrive before the user-left.
	env := readEnvelope(t, a)
	if env.Event != models.EventUserLeft {
		t.Fatalf("expected user-left as A's next frame, got %s", env.Event)
	}
	var left models.UserLeftPayload
	if err := json.Unmarshal(env.Data, &left); err != nil {
		t.Fatalf("bad user-left: %v", err)
	}
	if left.UserID != "u2" {
		t.Errorf("expected user-left for u2, got %q", left.UserID)
	}

	participants := ts.hub.RoomParticipants("proj-42")
	if len(participants) != 1 || participants[0].UserID != "u1" {
		t.Errorf("expected u1 alone in the room, got %+v", participants)
	}
}

func TestNotificationIndependentOfRoom(t *testing.T) {
	ts := newTestServer(t)

	// Two devices for u3, neither ever joins a room.
	first := ts.dial(t, "u3", "u3@example.com")
	second := ts.dial(t, "u3", "u3@example.com")

	// Give the handshakes time to register with the hub.
	waitForCondition(t, func() bool { return ts.hub.UserConnectionCount("u3") == 2 })

	ts.hub.NotifyUser("u3", map[string]interface{}{"foo": 1})

	for i, conn := range []*websocket.Conn{first, second} {
		data := expectEvent(t, conn, models.EventNotification)
		var payload map[string]interface{}
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("connection %d: bad notification: %v", i, err)
		}
		if payload["foo"] != float64(1) {
			t.Errorf("connection %d: unexpected payload %v", i, payload)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("bad health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected health body %v", body)
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}
