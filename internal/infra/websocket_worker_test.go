package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// stubStreamHandler implements WebSocketHandler for testing.
type stubStreamHandler struct {
	url         string
	connects    int32
	messages    int32
	lastMessage atomic.Value
}

func (s *stubStreamHandler) GetURL() string { return s.url }
func (s *stubStreamHandler) ID() string     { return "STUB_STREAM" }
func (s *stubStreamHandler) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	atomic.AddInt32(&s.connects, 1)
	return nil
}
func (s *stubStreamHandler) OnMessage(ctx context.Context, msg []byte) {
	atomic.AddInt32(&s.messages, 1)
	s.lastMessage.Store(string(msg))
}
func (s *stubStreamHandler) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return nil
}

func newWSTestServer(t *testing.T, handle func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handle(conn)
	}))
}

func wsURL(httpURL string) string {
	return strings.Replace(httpURL, "http://", "ws://", 1)
}

func TestBaseWSWorker_ConnectAndReceive(t *testing.T) {
	server := newWSTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"orderbook","market_id":"INJ/USDT"}`))
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	handler := &stubStreamHandler{url: wsURL(server.URL)}
	worker := NewBaseWSWorker(handler)
	worker.ReadTimeout = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	worker.Start(ctx)
	time.Sleep(200 * time.Millisecond)
	worker.Stop()

	if atomic.LoadInt32(&handler.connects) == 0 {
		t.Error("OnConnect was not called")
	}
	if atomic.LoadInt32(&handler.messages) == 0 {
		t.Error("OnMessage was not called")
	}
	if got, _ := handler.lastMessage.Load().(string); !strings.Contains(got, "orderbook") {
		t.Errorf("unexpected message delivered: %q", got)
	}
}

func TestBaseWSWorker_GracefulShutdown(t *testing.T) {
	serverClosed := make(chan struct{})
	server := newWSTestServer(t, func(conn *websocket.Conn) {
		<-serverClosed
	})
	defer server.Close()
	defer close(serverClosed)

	handler := &stubStreamHandler{url: wsURL(server.URL)}
	worker := NewBaseWSWorker(handler)

	worker.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		worker.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Stop did not return within timeout")
	}
}

func TestBaseWSWorker_Write(t *testing.T) {
	received := make(chan []byte, 1)
	server := newWSTestServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	handler := &stubStreamHandler{url: wsURL(server.URL)}
	worker := NewBaseWSWorker(handler)

	worker.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	sub := []byte(`{"op":"subscribe","channel":"orderbook"}`)
	if err := worker.Write(websocket.TextMessage, sub); err != nil {
		t.Errorf("Write failed: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != string(sub) {
			t.Errorf("expected %s, got %s", sub, msg)
		}
	case <-time.After(1 * time.Second):
		t.Error("server did not receive message")
	}

	worker.Stop()
}

func TestBaseWSWorker_WriteWithoutConnection(t *testing.T) {
	handler := &stubStreamHandler{url: "ws://unused.invalid"}
	worker := NewBaseWSWorker(handler)

	if err := worker.Write(websocket.TextMessage, []byte("ping")); err == nil {
		t.Error("expected Write to fail before connecting")
	}
}
