package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const emptyPollDelay = 500 * time.Millisecond

// session is an established connection over one transport.
type session interface {
	// read delivers raw chunks until the connection ends or ctx is done.
	read(ctx context.Context, deliver func(chunk string)) error
	close() error
}

// connector establishes a session against endpoint.
type connector func(ctx context.Context, endpoint string, header http.Header) (session, error)

func webSocketConnector(dialer *websocket.Dialer) connector {
	return func(ctx context.Context, endpoint string, header http.Header) (session, error) {
		conn, resp, err := dialer.DialContext(ctx, endpoint, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, errors.Wrap(err, "websocket handshake failed")
		}
		return &webSocketSession{conn: conn, once: &sync.Once{}}, nil
	}
}

type webSocketSession struct {
	conn *websocket.Conn
	once *sync.Once
}

func (s *webSocketSession) read(ctx context.Context, deliver func(chunk string)) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-stop:
		}
	}()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "websocket connection lost")
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			deliver(string(data))
		}
	}
}

func (s *webSocketSession) close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close()
	})
	return err
}

func longPollingConnector(client *http.Client) connector {
	return func(ctx context.Context, endpoint string, header http.Header) (session, error) {
		s := &longPollingSession{client: client, endpoint: endpoint, header: header, idle: emptyPollDelay}
		resp, err := s.poll(ctx)
		if err != nil {
			return nil, err
		}
		s.first = resp
		return s, nil
	}
}

// longPollingSession issues one GET after another; each response carries the
// messages the server held back since the previous poll.
type longPollingSession struct {
	client   *http.Client
	endpoint string
	header   http.Header
	first    *http.Response
	idle     time.Duration
}

func (s *longPollingSession) poll(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid long-polling request")
	}
	for k, v := range s.header {
		req.Header[k] = v
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "long-polling request failed")
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, errors.Errorf("long-polling request returned status %d", resp.StatusCode)
	}
	return resp, nil
}

func (s *longPollingSession) read(ctx context.Context, deliver func(chunk string)) error {
	resp := s.first
	s.first = nil
	for {
		if resp == nil {
			var err error
			if resp, err = s.poll(ctx); err != nil {
				return err
			}
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		resp = nil
		if err != nil {
			return errors.Wrap(err, "reading long-polling response failed")
		}
		if len(data) > 0 {
			deliver(string(data))
			continue
		}

		// an empty answer means the server did not suspend the request
		select {
		case <-time.After(s.idle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *longPollingSession) close() error {
	if s.first != nil {
		s.first.Body.Close()
		s.first = nil
	}
	return nil
}
