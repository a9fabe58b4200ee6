package transport

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

const (
	// sessions that delivered nothing and ended sooner are counted as drops
	stableSession  = 10 * time.Second
	reconnectSteps = 8
)

// channel is one logical push connection and the subscriptions it feeds.
type channel struct {
	client     *Client
	request    Request
	trackingID string
	decoder    *frameDecoder

	lock     *sync.RWMutex
	subs     []*Subscription
	finished bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	transport atomic.Value
}

func newChannel(c *Client, req Request) *channel {
	ctx, cancel := context.WithCancel(context.Background())
	ch := &channel{
		client:     c,
		request:    req,
		trackingID: uuid.NewV4().String(),
		decoder:    &frameDecoder{track: req.TrackMessageLength},
		lock:       &sync.RWMutex{},
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	ch.transport.Store("")
	return ch
}

// add registers a subscription; the caller holds the client lock, so a
// channel found in the shared map has not been forgotten yet.
func (ch *channel) add(req Request) *Subscription {
	ch.lock.Lock()
	defer ch.lock.Unlock()

	if ch.finished {
		return nil
	}

	sub := newSubscription(ch, req)
	ch.subs = append(ch.subs, sub)

	ch.client.log.WithField("subscriberId", sub.ID()).
		WithField("url", ch.request.URL).
		WithField("shared", ch.request.Shared).
		Info("Registered new subscriber")
	return sub
}

func (ch *channel) remove(sub *Subscription) {
	ch.lock.Lock()
	for i, s := range ch.subs {
		if s == sub {
			ch.subs = append(ch.subs[:i], ch.subs[i+1:]...)
			break
		}
	}
	last := len(ch.subs) == 0 && !ch.finished
	if last {
		ch.finished = true
	}
	ch.lock.Unlock()

	ch.client.log.WithField("subscriberId", sub.ID()).
		WithField("url", ch.request.URL).
		Info("Unregistered subscriber")

	if last {
		ch.client.forget(ch)
		ch.cancel()
	}
}

func (ch *channel) subscribers() []*Subscription {
	ch.lock.RLock()
	defer ch.lock.RUnlock()

	subs := make([]*Subscription, len(ch.subs))
	copy(subs, ch.subs)
	return subs
}

func (ch *channel) currentTransport() string {
	return ch.transport.Load().(string)
}

func (ch *channel) run() {
	defer close(ch.done)
	defer ch.cancel()

	log := ch.client.log.WithField("url", ch.request.URL).WithField("trackingId", ch.trackingID)
	delays := retrier.ExponentialBackoff(reconnectSteps, ch.client.backoff)
	drops := 0
	for {
		sess, name, err := ch.connect()
		if err != nil {
			if ch.ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("Push channel cannot connect with any transport")
			ch.fail(err)
			return
		}

		ch.transport.Store(name)
		ch.decoder.reset()
		log.WithField("transport", name).Info("Connected to push channel")

		started := time.Now()
		received := 0
		err = sess.read(ch.ctx, func(chunk string) {
			received += ch.deliver(name, chunk)
		})
		_ = sess.close()
		ch.transport.Store("")

		if ch.ctx.Err() != nil {
			log.Info("Push channel closed")
			return
		}

		if received > 0 || time.Since(started) >= stableSession {
			drops = 0
		}
		delay := delays[drops]
		if drops < len(delays)-1 {
			drops++
		}

		log.WithField("transport", name).
			WithField("retryIn", delay.String()).
			WithError(err).
			Warn("Push channel connection lost, reconnecting")

		select {
		case <-time.After(delay):
		case <-ch.ctx.Done():
			log.Info("Push channel closed")
			return
		}
	}
}

// connect tries every transport in order, each with its own retry budget.
func (ch *channel) connect() (session, string, error) {
	var failures []string
	for _, name := range ch.request.transports() {
		endpoint, err := ch.request.endpoint(name, ch.trackingID)
		if err != nil {
			return nil, "", err
		}
		conn := ch.client.connectors[name]

		var sess session
		r := retrier.New(retrier.ExponentialBackoff(ch.client.retries, ch.client.backoff), nil)
		err = r.RunCtx(ch.ctx, func(ctx context.Context) error {
			s, err := conn(ctx, endpoint, ch.request.Header)
			if err != nil {
				ch.client.log.WithField("transport", name).WithError(err).Debug("Push channel connection attempt failed")
				return err
			}
			sess = s
			return nil
		})
		if err == nil {
			return sess, name, nil
		}
		if ch.ctx.Err() != nil {
			return nil, "", ch.ctx.Err()
		}
		failures = append(failures, name+": "+err.Error())
	}
	return nil, "", errors.Errorf("unable to connect to %s (%s)", ch.request.URL, strings.Join(failures, "; "))
}

// deliver decodes chunk and hands every message to the subscribers in order.
// It returns the number of messages decoded.
func (ch *channel) deliver(name, chunk string) int {
	messages := ch.decoder.decode(chunk)
	for _, msg := range messages {
		resp := Response{Body: msg, Transport: name, TrackingID: ch.trackingID}
		for _, sub := range ch.subscribers() {
			sub.receive(resp)
		}
	}
	return len(messages)
}

func (ch *channel) fail(err error) {
	ch.lock.Lock()
	ch.finished = true
	subs := ch.subs
	ch.subs = nil
	ch.lock.Unlock()

	ch.client.forget(ch)
	for _, sub := range subs {
		sub.fail(err.Error())
	}
}
