package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serve starts a websocket server that hands each accepted client to onClient and runs it.
func serve(t *testing.T, opts Options, onClient func(*Client)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		c := NewClient(conn, opts)
		onClient(c)
		c.Run(context.Background())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestClientDeliversInOrder(t *testing.T) {
	clients := make(chan *Client, 1)
	srv := serve(t, Options{}, func(c *Client) { clients <- c })
	conn := dial(t, srv)
	c := <-clients

	for _, m := range []string{"a", "b", "c"} {
		if err := c.Send([]byte(m)); err != nil {
			t.Fatalf("Send(%s) error: %v", m, err)
		}
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, want := range []string{"a", "b", "c"} {
		_, got, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}

func TestSendAfterPeerCloseFails(t *testing.T) {
	clients := make(chan *Client, 1)
	srv := serve(t, Options{}, func(c *Client) { clients <- c })
	conn := dial(t, srv)
	c := <-clients

	_ = conn.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not notice the peer leaving")
	}
	if err := c.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send() error = %v, want ErrClosed", err)
	}
}

func TestSendReportsFullBuffer(t *testing.T) {
	c := &Client{send: make(chan []byte, 1), done: make(chan struct{})}
	if err := c.Send([]byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := c.Send([]byte("2")); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Send() error = %v, want ErrBufferFull", err)
	}
}
