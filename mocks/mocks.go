package mocks

import (
	"context"
	"time"

	"github.com/grundic/browser-notifier/notify"
	"github.com/grundic/browser-notifier/transport"
	"github.com/stretchr/testify/mock"
)

type Notifier struct {
	mock.Mock
}

func (m *Notifier) IsSupported() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *Notifier) NeedsPermission() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *Notifier) RequestPermission(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *Notifier) Show(n notify.Notification) error {
	args := m.Called(n)
	return args.Error(0)
}

type Subscriber struct {
	mock.Mock
}

func (m *Subscriber) Subscribe(ctx context.Context, req transport.Request) (*transport.Subscription, error) {
	args := m.Called(ctx, req)
	if sub, ok := args.Get(0).(*transport.Subscription); ok {
		return sub, args.Error(1)
	}
	return nil, args.Error(1)
}

type Navigator struct {
	mock.Mock
}

func (m *Navigator) Navigate(url string) error {
	args := m.Called(url)
	return args.Error(0)
}

type Presenter struct {
	mock.Mock
}

func (m *Presenter) SetStatus(icon, text string) {
	m.Called(icon, text)
}

func (m *Presenter) SetControlVisible(id string, visible bool) {
	m.Called(id, visible)
}

type PushChannel struct {
	ConnectivityCheckF func() error
	TransportF         func() string
	SinceF             func() time.Time
	SubscribersF       func() int
}

func (c *PushChannel) ConnectivityCheck() error {
	if c.ConnectivityCheckF != nil {
		return c.ConnectivityCheckF()
	}
	return transport.ErrNotConnected
}

func (c *PushChannel) Transport() string {
	if c.TransportF != nil {
		return c.TransportF()
	}
	return ""
}

func (c *PushChannel) Since() time.Time {
	if c.SinceF != nil {
		return c.SinceF()
	}
	return time.Time{}
}

func (c *PushChannel) Subscribers() int {
	if c.SubscribersF != nil {
		return c.SubscribersF()
	}
	return 0
}
