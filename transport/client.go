package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	logger "github.com/Financial-Times/go-logger/v2"
	"github.com/gorilla/websocket"
)

const defaultBackoff = 500 * time.Millisecond

// Client opens push subscriptions. Shared subscriptions to the same URL are
// served by a single connection.
type Client struct {
	connectors map[string]connector
	retries    int
	backoff    time.Duration
	log        *logger.UPPLogger
	lock       *sync.Mutex
	shared     map[string]*channel
}

// NewClient creates a client. Every transport is retried retries times with
// exponential backoff starting at backoff before falling back to the next one.
func NewClient(httpClient *http.Client, retries int, backoff time.Duration, log *logger.UPPLogger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Jar:              httpClient.Jar,
	}
	return &Client{
		connectors: map[string]connector{
			WebSocket:   webSocketConnector(dialer),
			LongPolling: longPollingConnector(httpClient),
		},
		retries: retries,
		backoff: backoff,
		log:     log,
		lock:    &sync.Mutex{},
		shared:  map[string]*channel{},
	}
}

// Subscribe registers req's callbacks on a push channel. The subscription
// lasts until ctx is done, Close is called or the transport fails for good.
func (c *Client) Subscribe(ctx context.Context, req Request) (*Subscription, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	c.lock.Lock()
	var (
		ch      *channel
		sub     *Subscription
		created bool
	)
	if req.Shared {
		if existing, ok := c.shared[req.URL]; ok {
			ch = existing
			sub = ch.add(req)
		}
	}
	if sub == nil {
		ch = newChannel(c, req)
		sub = ch.add(req)
		created = true
		if req.Shared {
			c.shared[req.URL] = ch
		}
	}
	c.lock.Unlock()

	if created {
		go ch.run()
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()

	return sub, nil
}

func (c *Client) forget(ch *channel) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.shared[ch.request.URL] == ch {
		delete(c.shared, ch.request.URL)
	}
}
