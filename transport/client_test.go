package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logger "github.com/Financial-Times/go-logger/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notifyPath = "/browserNotifier/notify.html"

// pushServer speaks the subset of the Atmosphere protocol the client uses.
type pushServer struct {
	frames          []string
	rejectWebSocket bool
	rejectAll       bool

	// the first dropSessions websocket sessions are closed right after the upgrade
	dropSessions int32

	upgrader      websocket.Upgrader
	wsConnections int32
	polls         int32
	lock          sync.Mutex
	requests      []*http.Request
}

func (s *pushServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.requests = append(s.requests, r)
	s.lock.Unlock()

	if s.rejectAll {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Query().Get(transportParam) {
	case WebSocket:
		if s.rejectWebSocket {
			http.NotFound(w, r)
			return
		}
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if atomic.AddInt32(&s.wsConnections, 1) <= atomic.LoadInt32(&s.dropSessions) {
			return
		}
		for _, f := range s.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	case LongPolling:
		if atomic.AddInt32(&s.polls, 1) == 1 {
			_, _ = w.Write([]byte(strings.Join(s.frames, "")))
			return
		}
		<-r.Context().Done()
	default:
		http.Error(w, "missing transport", http.StatusBadRequest)
	}
}

func newPushServer(frames ...string) (*pushServer, *httptest.Server) {
	ps := &pushServer{frames: frames}
	return ps, httptest.NewServer(ps)
}

func newTestClient(server *httptest.Server) *Client {
	return NewClient(server.Client(), 1, 10*time.Millisecond, logger.NewUPPLogger("TEST", "PANIC"))
}

func newTestRequest(server *httptest.Server, messages chan<- Response, failures chan<- string) Request {
	return Request{
		URL:                server.URL + notifyPath,
		ContentType:        "application/json",
		TrackMessageLength: true,
		Shared:             true,
		Transport:          WebSocket,
		FallbackTransport:  LongPolling,
		OnMessage: func(r Response) {
			messages <- r
		},
		OnTransportFailure: func(msg string) {
			failures <- msg
		},
	}
}

func sharedChannels(c *Client) map[string]*channel {
	c.lock.Lock()
	defer c.lock.Unlock()

	shared := make(map[string]*channel, len(c.shared))
	for url, ch := range c.shared {
		shared[url] = ch
	}
	return shared
}

func receive(t *testing.T, messages <-chan Response) Response {
	select {
	case r := <-messages:
		return r
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no message received")
	}
	return Response{}
}

func TestSubscribeOverWebSocket(t *testing.T) {
	_, server := newPushServer(`7|{"a":1}`, `7|{"b":2}`)
	defer server.Close()

	messages := make(chan Response, 10)
	failures := make(chan string, 1)

	sub, err := newTestClient(server).Subscribe(context.Background(), newTestRequest(server, messages, failures))
	require.NoError(t, err)
	defer sub.Close()

	first := receive(t, messages)
	assert.Equal(t, `{"a":1}`, first.Body)
	assert.Equal(t, WebSocket, first.Transport)
	assert.NotEmpty(t, first.TrackingID)

	second := receive(t, messages)
	assert.Equal(t, `{"b":2}`, second.Body)

	assert.Equal(t, WebSocket, sub.Transport())
	assert.NoError(t, sub.ConnectivityCheck())
	assert.Empty(t, failures)
}

func TestSubscribeFallsBackToLongPolling(t *testing.T) {
	ps, server := newPushServer(`7|{"a":1}`, `7|{"b":2}`)
	ps.rejectWebSocket = true
	defer server.Close()

	messages := make(chan Response, 10)
	failures := make(chan string, 1)

	sub, err := newTestClient(server).Subscribe(context.Background(), newTestRequest(server, messages, failures))
	require.NoError(t, err)
	defer sub.Close()

	first := receive(t, messages)
	assert.Equal(t, `{"a":1}`, first.Body)
	assert.Equal(t, LongPolling, first.Transport)
	assert.Equal(t, `{"b":2}`, receive(t, messages).Body)

	assert.Equal(t, LongPolling, sub.Transport())
	assert.Equal(t, int32(0), atomic.LoadInt32(&ps.wsConnections))
}

func TestSubscribeReportsTerminalFailureOnce(t *testing.T) {
	ps, server := newPushServer()
	ps.rejectAll = true
	defer server.Close()

	messages := make(chan Response, 10)
	failures := make(chan string, 10)

	sub, err := newTestClient(server).Subscribe(context.Background(), newTestRequest(server, messages, failures))
	require.NoError(t, err)

	select {
	case msg := <-failures:
		assert.Contains(t, msg, "websocket")
		assert.Contains(t, msg, "long-polling")
	case <-time.After(2 * time.Second):
		require.FailNow(t, "transport failure not reported")
	}

	<-sub.Done()
	assert.Equal(t, ErrNotConnected, sub.ConnectivityCheck())
	assert.Empty(t, failures)
	assert.Empty(t, messages)

	// one attempt plus one retry per transport
	ps.lock.Lock()
	assert.Len(t, ps.requests, 4)
	ps.lock.Unlock()
}

func TestSharedSubscriptionsUseOneConnection(t *testing.T) {
	ps, server := newPushServer(`7|{"a":1}`, `7|{"b":2}`)
	defer server.Close()

	client := newTestClient(server)
	failures := make(chan string, 2)

	first := make(chan Response, 10)
	second := make(chan Response, 10)

	// hold delivery until both subscriptions are registered
	gate := make(chan struct{})
	req := newTestRequest(server, first, failures)
	onFirst := req.OnMessage
	req.OnMessage = func(r Response) {
		<-gate
		onFirst(r)
	}

	s1, err := client.Subscribe(context.Background(), req)
	require.NoError(t, err)
	defer s1.Close()
	s2, err := client.Subscribe(context.Background(), newTestRequest(server, second, failures))
	require.NoError(t, err)
	defer s2.Close()
	close(gate)

	assert.Equal(t, 2, s1.Subscribers())
	assert.Equal(t, 2, s2.Subscribers())
	assert.Equal(t, `{"a":1}`, receive(t, first).Body)
	assert.Equal(t, `{"b":2}`, receive(t, first).Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ps.wsConnections))
}

func TestUnsharedSubscriptionsUseOwnConnections(t *testing.T) {
	ps, server := newPushServer(`7|{"a":1}`)
	defer server.Close()

	client := newTestClient(server)
	failures := make(chan string, 2)

	for i := 0; i < 2; i++ {
		messages := make(chan Response, 10)
		req := newTestRequest(server, messages, failures)
		req.Shared = false
		sub, err := client.Subscribe(context.Background(), req)
		require.NoError(t, err)
		defer sub.Close()
		receive(t, messages)
		assert.Equal(t, 1, sub.Subscribers())
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&ps.wsConnections))
	assert.Empty(t, sharedChannels(client))
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	_, server := newPushServer(`7|{"a":1}`)
	defer server.Close()

	client := newTestClient(server)
	messages := make(chan Response, 10)
	failures := make(chan string, 1)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := client.Subscribe(ctx, newTestRequest(server, messages, failures))
	require.NoError(t, err)
	receive(t, messages)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		require.FailNow(t, "subscription did not end")
	}

	assert.Equal(t, 0, sub.Subscribers())
	assert.Empty(t, sharedChannels(client))
	assert.Empty(t, failures)
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	_, server := newPushServer(`5|panic`, `7|{"a":1}`)
	defer server.Close()

	messages := make(chan Response, 10)
	failures := make(chan string, 1)
	req := newTestRequest(server, messages, failures)
	req.OnMessage = func(r Response) {
		if r.Body == "panic" {
			panic("bad message")
		}
		messages <- r
	}

	sub, err := newTestClient(server).Subscribe(context.Background(), req)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, `{"a":1}`, receive(t, messages).Body)
}

func TestSubscribeRejectsInvalidRequest(t *testing.T) {
	client := NewClient(nil, 0, time.Millisecond, logger.NewUPPLogger("TEST", "PANIC"))
	_, err := client.Subscribe(context.Background(), Request{URL: "http://ci.example.com" + notifyPath})
	assert.Error(t, err)
}

func TestDroppedConnectionIsReestablished(t *testing.T) {
	ps, server := newPushServer(`7|{"a":1}`)
	ps.dropSessions = 2
	defer server.Close()

	messages := make(chan Response, 10)
	failures := make(chan string, 1)

	sub, err := newTestClient(server).Subscribe(context.Background(), newTestRequest(server, messages, failures))
	require.NoError(t, err)
	defer sub.Close()

	msg := receive(t, messages)
	assert.Equal(t, `{"a":1}`, msg.Body)
	assert.Equal(t, WebSocket, msg.Transport)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&ps.wsConnections))
	assert.Equal(t, int32(0), atomic.LoadInt32(&ps.polls))
	assert.NoError(t, sub.ConnectivityCheck())
	assert.Empty(t, failures)
}

func TestReconnectsBackOffWhenSessionsDropAtOnce(t *testing.T) {
	ps, server := newPushServer()
	ps.dropSessions = 1 << 30
	defer server.Close()

	messages := make(chan Response, 10)
	failures := make(chan string, 1)

	client := NewClient(server.Client(), 5, 50*time.Millisecond, logger.NewUPPLogger("TEST", "PANIC"))
	sub, err := client.Subscribe(context.Background(), newTestRequest(server, messages, failures))
	require.NoError(t, err)

	// waits of 50, 100 and 200ms fit in the window
	time.Sleep(500 * time.Millisecond)
	sub.Close()

	connections := atomic.LoadInt32(&ps.wsConnections)
	assert.GreaterOrEqual(t, connections, int32(2))
	assert.LessOrEqual(t, connections, int32(5))
	assert.Empty(t, failures)
	assert.Empty(t, messages)
}
