package transport

import (
	"errors"
	"sync"
	"time"

	uuid "github.com/satori/go.uuid"
)

var ErrNotConnected = errors.New("push channel is not connected")

// Subscription is a handle on a registered set of callbacks.
type Subscription struct {
	id        string
	since     time.Time
	ch        *channel
	onMessage func(Response)
	onFailure func(string)
	done      chan struct{}
	once      *sync.Once
}

func newSubscription(ch *channel, req Request) *Subscription {
	return &Subscription{
		id:        uuid.NewV4().String(),
		since:     time.Now(),
		ch:        ch,
		onMessage: req.OnMessage,
		onFailure: req.OnTransportFailure,
		done:      make(chan struct{}),
		once:      &sync.Once{},
	}
}

// ID returns the uniquely generated subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Since returns the time the subscription was registered.
func (s *Subscription) Since() time.Time {
	return s.since
}

// Transport returns the transport currently carrying messages, or an empty
// string while disconnected.
func (s *Subscription) Transport() string {
	return s.ch.currentTransport()
}

// Subscribers returns how many subscriptions share this subscription's
// connection, itself included. It is zero once the subscription ended.
func (s *Subscription) Subscribers() int {
	select {
	case <-s.done:
		return 0
	default:
	}
	return len(s.ch.subscribers())
}

func (s *Subscription) ConnectivityCheck() error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}
	if s.Transport() == "" {
		return ErrNotConnected
	}
	return nil
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.ch.remove(s)
		close(s.done)
	})
}

func (s *Subscription) receive(resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.ch.client.log.WithField("subscriberId", s.id).
				WithField("panic", r).
				Error("Push message handler panicked, message dropped")
		}
	}()
	s.onMessage(resp)
}

func (s *Subscription) fail(message string) {
	s.once.Do(func() {
		if s.onFailure != nil {
			s.onFailure(message)
		}
		close(s.done)
	})
}
