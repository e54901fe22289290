package wsconn

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// peer is the remote end of a test connection
type peer struct {
	server   *httptest.Server
	messages chan string
	closed   chan int
	conns    chan *websocket.Conn
}

func newPeer(t *testing.T) *peer {
	t.Helper()

	p := &peer{
		messages: make(chan string, 64),
		closed:   make(chan int, 1),
		conns:    make(chan *websocket.Conn, 1),
	}

	upgrader := websocket.Upgrader{}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		p.conns <- ws

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				code := -1
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					code = closeErr.Code
				}
				p.closed <- code
				return
			}
			p.messages <- string(data)
		}
	}))
	t.Cleanup(p.server.Close)

	return p
}

func (p *peer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(p.server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	return ws
}

func TestConnSendPreservesOrder(t *testing.T) {
	p := newPeer(t)
	c := New(p.dial(t), Config{QueueSize: 16, WriteTimeout: time.Second}, testLogger())
	c.Start(func([]byte) {}, nil)

	for i := 0; i < 5; i++ {
		if err := c.SendDroppable(map[string]int{"seq": i}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if err := c.Send(map[string]string{"event": "mark"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	expected := []string{
		`{"seq":0}`, `{"seq":1}`, `{"seq":2}`, `{"seq":3}`, `{"seq":4}`,
		`{"event":"mark"}`,
	}
	for i, want := range expected {
		select {
		case got := <-p.messages:
			if got != want {
				t.Errorf("Message %d: expected %s, got %s", i, want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for message %d", i)
		}
	}

	c.Close()
}

func TestConnCloseFlushesAndHandshakes(t *testing.T) {
	p := newPeer(t)
	c := New(p.dial(t), Config{QueueSize: 16, WriteTimeout: time.Second}, testLogger())

	exited := make(chan error, 1)
	c.Start(func([]byte) {}, func(err error) { exited <- err })

	if err := c.Send(map[string]string{"type": "input_audio_buffer.commit"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	c.Close()
	c.Close()

	select {
	case got := <-p.messages:
		if got != `{"type":"input_audio_buffer.commit"}` {
			t.Errorf("Unexpected message %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Queued frame was not flushed before close")
	}

	select {
	case code := <-p.closed:
		if code != websocket.CloseNormalClosure {
			t.Errorf("Expected normal closure, got %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Peer did not observe close")
	}

	select {
	case err := <-exited:
		if err != nil {
			t.Errorf("Expected nil exit error after local close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Reader did not exit")
	}

	if err := c.Send(map[string]string{"late": "frame"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after close, got %v", err)
	}
}

func TestConnDeliversInboundInOrder(t *testing.T) {
	p := newPeer(t)
	c := New(p.dial(t), Config{QueueSize: 16, WriteTimeout: time.Second}, testLogger())

	received := make(chan string, 8)
	exited := make(chan error, 1)
	c.Start(func(data []byte) { received <- string(data) }, func(err error) { exited <- err })

	server := <-p.conns
	for _, msg := range []string{"one", "two", "three"} {
		if err := server.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("Server write failed: %v", err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case got := <-received:
			if got != want {
				t.Errorf("Expected %s, got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}

	server.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	select {
	case err := <-exited:
		if !errors.Is(err, ErrPeerClosed) {
			t.Errorf("Expected ErrPeerClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Reader did not exit after peer close")
	}

	select {
	case <-c.Done():
	default:
		t.Error("Connection should be closed after the peer closed")
	}
}
