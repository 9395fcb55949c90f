package webevents

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
)

func TestPublishReachesConnectedClients(t *testing.T) {
	is := is.New(t)

	we := New(nil)
	server := httptest.NewServer(we.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	is.NoErr(err)
	defer conn.Close()

	waitFor(func() bool { return we.Clients() == 1 })
	is.Equal(we.Clients(), 1)

	is.NoErr(we.Publish("command.status", map[string]string{"commandId": "c1", "status": "sent"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	is.NoErr(err)

	msg := struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}{}
	is.NoErr(json.Unmarshal(b, &msg))
	is.Equal(msg.Event, "command.status")
	is.Equal(msg.Data["status"], "sent")

	we.Shutdown()
	is.Equal(we.Clients(), 0)
}

func TestThatForeignOriginsAreRejected(t *testing.T) {
	is := is.New(t)

	we := New(func(r *http.Request) bool {
		return r.Header.Get("Origin") == "https://farm.example.com"
	})
	server := httptest.NewServer(we.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	is.True(err != nil)
	is.Equal(resp.StatusCode, http.StatusForbidden)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://farm.example.com"}})
	is.NoErr(err)
	conn.Close()

	conn, _, err = websocket.DefaultDialer.Dial(url, nil)
	is.NoErr(err)
	conn.Close()

	we.Shutdown()
}

func TestPublishWithoutClients(t *testing.T) {
	is := is.New(t)

	we := New(nil)
	is.NoErr(we.Publish("alert", nil))
	is.Equal(we.Clients(), 0)
}

func waitFor(cond func() bool) {
	for i := 0; i < 100 && !cond(); i++ {
		time.Sleep(10 * time.Millisecond)
	}
}
