package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dial connects a real websocket client whose server side is subscribed
// to the hub, and returns the client connection.
func dial(t *testing.T, hub *Hub, roomCode, participantID string, expectSubs int) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.AddConnection(roomCode, participantID, conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount(roomCode) < expectSubs && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.SubscriberCount(roomCode); got < expectSubs {
		t.Fatalf("subscriber count = %d, want %d", got, expectSubs)
	}
	return client
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestBroadcastOrderIsIdenticalForAllSubscribers(t *testing.T) {
	hub := NewHub()
	c1 := dial(t, hub, "ROOM01", "p1", 1)
	c2 := dial(t, hub, "ROOM01", "p2", 2)

	types := []string{TypeParticipantJoined, TypeRoomStateChanged, TypeParticipantLeft}
	for _, typ := range types {
		hub.Broadcast("ROOM01", Message{Type: typ})
	}

	for i, typ := range types {
		m1 := readMessage(t, c1)
		m2 := readMessage(t, c2)
		if m1.Type != typ || m2.Type != typ {
			t.Fatalf("delta %d: got %q/%q, want %q for both subscribers", i, m1.Type, m2.Type, typ)
		}
		if m1.Seq != m2.Seq {
			t.Errorf("delta %d: seq %d vs %d, want identical", i, m1.Seq, m2.Seq)
		}
		if m1.Seq != uint64(i+1) {
			t.Errorf("delta %d: seq = %d, want %d", i, m1.Seq, i+1)
		}
	}
}

func TestBroadcastIsScopedToRoom(t *testing.T) {
	hub := NewHub()
	c1 := dial(t, hub, "ROOM01", "p1", 1)
	c2 := dial(t, hub, "ROOM02", "p2", 1)

	hub.Broadcast("ROOM01", Message{Type: TypeRoomStateChanged})

	if msg := readMessage(t, c1); msg.Type != TypeRoomStateChanged {
		t.Errorf("subscriber got %q, want room_state_changed", msg.Type)
	}

	c2.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := c2.ReadMessage(); err == nil {
		t.Error("subscriber of another room received the delta")
	}
}

func TestSendToParticipant(t *testing.T) {
	hub := NewHub()
	target := dial(t, hub, "ROOM01", "p1", 1)
	other := dial(t, hub, "ROOM01", "p2", 2)

	hub.SendToParticipant("ROOM01", "p1", Message{Type: TypeRemoved})

	if msg := readMessage(t, target); msg.Type != TypeRemoved {
		t.Errorf("target got %q, want removed", msg.Type)
	}

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("targeted delta leaked to another seat")
	}
}

func TestRemoveConnection(t *testing.T) {
	hub := NewHub()
	dial(t, hub, "ROOM01", "p1", 1)

	hub.mu.Lock()
	var conn *websocket.Conn
	for c := range hub.rooms["ROOM01"] {
		conn = c
	}
	hub.mu.Unlock()

	hub.RemoveConnection("ROOM01", conn)
	if got := hub.SubscriberCount("ROOM01"); got != 0 {
		t.Errorf("subscriber count = %d, want 0", got)
	}
}
