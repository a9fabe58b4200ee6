package subscription

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	logger "github.com/Financial-Times/go-logger/v2"
	"github.com/grundic/browser-notifier/notify"
	"github.com/grundic/browser-notifier/transport"
	metrics "github.com/rcrowley/go-metrics"
)

const (
	NotifyResource   = "/browserNotifier/notify.html"
	DefaultIconPath  = "/plugins/teamcity-browser-notify/com/github/grundic/browser/notificator/img/"
	DefaultTimeout   = 10 * time.Second
	TransportFailure = "Transport Failure"
	contentType      = "application/json"
)

// counter names
const (
	ReceivedCounter = "messages.received"
	ShownCounter    = "messages.shown"
	DroppedCounter  = "messages.dropped"
	FailureCounter  = "transport.failures"
)

var (
	ErrAlreadySubscribed = errors.New("push channel already subscribed")
	ErrNotSubscribed     = errors.New("push channel not subscribed")
)

// Subscriber is the push transport capability.
type Subscriber interface {
	Subscribe(ctx context.Context, req transport.Request) (*transport.Subscription, error)
}

type Config struct {
	BaseURI  string
	IconPath string
	// Timeout is the auto-dismiss delay of pushed notifications.
	Timeout time.Duration
	// Header is sent with every connection attempt, e.g. a session cookie.
	Header http.Header
}

// Manager holds the page's single push subscription and renders every
// message it delivers.
type Manager struct {
	cfg       Config
	transport Subscriber
	notifier  notify.Notifier
	navigator Navigator
	mapper    NotificationMapper
	log       *logger.UPPLogger

	lock       *sync.Mutex
	subscribed bool
	sub        *transport.Subscription

	received metrics.Counter
	shown    metrics.Counter
	dropped  metrics.Counter
	failures metrics.Counter
}

func NewManager(cfg Config, t Subscriber, n notify.Notifier, nav Navigator, registry metrics.Registry, log *logger.UPPLogger) *Manager {
	if cfg.IconPath == "" {
		cfg.IconPath = DefaultIconPath
	}
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &Manager{
		cfg:       cfg,
		transport: t,
		notifier:  n,
		navigator: nav,
		mapper: NotificationMapper{
			BaseURI:  cfg.BaseURI,
			IconPath: cfg.IconPath,
			Timeout:  cfg.Timeout,
		},
		log:      log,
		lock:     &sync.Mutex{},
		received: metrics.GetOrRegisterCounter(ReceivedCounter, registry),
		shown:    metrics.GetOrRegisterCounter(ShownCounter, registry),
		dropped:  metrics.GetOrRegisterCounter(DroppedCounter, registry),
		failures: metrics.GetOrRegisterCounter(FailureCounter, registry),
	}
}

// Request returns the subscription request with the manager's callbacks.
func (m *Manager) Request() transport.Request {
	return transport.Request{
		URL:                m.cfg.BaseURI + NotifyResource,
		ContentType:        contentType,
		TrackMessageLength: true,
		Shared:             true,
		Transport:          transport.WebSocket,
		FallbackTransport:  transport.LongPolling,
		Header:             m.cfg.Header,
		OnTransportFailure: m.OnTransportFailure,
		OnMessage: func(resp transport.Response) {
			_ = m.OnMessage(resp)
		},
	}
}

// Init opens the push subscription. It stays open until ctx is done.
func (m *Manager) Init(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.subscribed {
		return ErrAlreadySubscribed
	}

	req := m.Request()
	sub, err := m.transport.Subscribe(ctx, req)
	if err != nil {
		m.log.WithField("url", req.URL).WithError(err).Error("Cannot subscribe to push channel")
		return err
	}
	m.subscribed = true
	m.sub = sub

	m.log.WithField("url", req.URL).
		WithField("transport", req.Transport).
		WithField("fallbackTransport", req.FallbackTransport).
		Info("Subscribed to push channel")
	return nil
}

// OnTransportFailure tells the user that the push channel is gone for good.
func (m *Manager) OnTransportFailure(message string) {
	m.failures.Inc(1)
	m.log.WithField("error", message).Error("Push channel transport failure")

	err := m.notifier.Show(notify.Notification{
		Title: TransportFailure,
		Body:  message,
	})
	if err != nil {
		m.log.WithError(err).Error("Cannot show transport failure notification")
	}
}

// OnMessage renders one push message. Messages that do not decode are logged
// and dropped.
func (m *Manager) OnMessage(resp transport.Response) error {
	m.received.Inc(1)

	event, err := DecodeEvent(resp.Body)
	if err != nil {
		m.dropped.Inc(1)
		m.log.WithField("message_body", resp.Body).
			WithField("transport", resp.Transport).
			WithError(err).
			Warn("Skipping push message.")
		return err
	}

	entry := m.log.WithField("title", event.Title).WithField("url", event.URL)
	if event.Tag != "" {
		entry = entry.WithField("tag", event.Tag)
	}

	n := m.mapper.MapNotification(event, m.navigate)
	if err := m.notifier.Show(n); err != nil {
		entry.WithError(err).Error("Cannot show notification")
		return err
	}

	m.shown.Inc(1)
	entry.Info("Notification shown")
	return nil
}

func (m *Manager) navigate(url string) {
	if m.navigator == nil {
		return
	}
	if err := m.navigator.Navigate(url); err != nil {
		m.log.WithField("url", url).WithError(err).Warn("Cannot open notification target")
	}
}

// ConnectivityCheck reports whether the push channel is connected.
func (m *Manager) ConnectivityCheck() error {
	m.lock.Lock()
	subscribed, sub := m.subscribed, m.sub
	m.lock.Unlock()

	if !subscribed {
		return ErrNotSubscribed
	}
	if sub == nil {
		return transport.ErrNotConnected
	}
	return sub.ConnectivityCheck()
}

// Transport returns the transport currently in use, if any.
func (m *Manager) Transport() string {
	m.lock.Lock()
	sub := m.sub
	m.lock.Unlock()

	if sub == nil {
		return ""
	}
	return sub.Transport()
}

// Since returns when the push subscription was opened.
func (m *Manager) Since() time.Time {
	m.lock.Lock()
	sub := m.sub
	m.lock.Unlock()

	if sub == nil {
		return time.Time{}
	}
	return sub.Since()
}

// Subscribers returns the number of subscriptions sharing the connection.
func (m *Manager) Subscribers() int {
	m.lock.Lock()
	sub := m.sub
	m.lock.Unlock()

	if sub == nil {
		return 0
	}
	return sub.Subscribers()
}
