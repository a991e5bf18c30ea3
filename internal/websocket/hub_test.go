package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studymate-backend/internal/models"
)

type staticVerifier map[string]string

func (v staticVerifier) ParseUserID(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_LocalPublish(t *testing.T) {
	hub := NewHub(nil, staticVerifier{"tok-a": "alice", "tok-b": "bob"}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()
	defer hub.Close()

	alice := dial(t, srv, "tok-a")
	defer alice.Close()
	bob := dial(t, srv, "tok-b")
	defer bob.Close()
	waitFor(t, func() bool { return hub.Connections("alice") == 1 && hub.Connections("bob") == 1 })

	hub.Publish(context.Background(), "alice", models.WSMessage{Type: "battle_round", Payload: map[string]int{"round": 1}})

	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := alice.ReadMessage()
	if err != nil {
		t.Fatalf("alice read failed: %v", err)
	}
	if !strings.Contains(string(data), `"type":"battle_round"`) {
		t.Fatalf("unexpected message %s", data)
	}

	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Fatalf("bob must not receive alice's events")
	}
}

func TestHub_RejectsBadToken(t *testing.T) {
	hub := NewHub(nil, staticVerifier{}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	for _, token := range []string{"", "nope"} {
		resp, err := http.Get(srv.URL + "/ws?token=" + token)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, resp.StatusCode)
		}
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil, staticVerifier{"tok": "carol"}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, "tok")
	waitFor(t, func() bool { return hub.Connections("carol") == 1 })
	conn.Close()
	waitFor(t, func() bool { return hub.Connections("carol") == 0 })
}
