// Package permission reflects the notification permission state on the
// settings page and drives permission requests and test notifications.
package permission

import (
	"context"
	"errors"
	"sync"
	"time"

	logger "github.com/Financial-Times/go-logger/v2"
	"github.com/grundic/browser-notifier/notify"
)

type State string

const (
	Granted     State = "granted"
	Denied      State = "denied"
	Unsupported State = "unsupported"
)

// page controls
const (
	RequestControl = "notification-request"
	TestControl    = "notification-test"
)

const (
	DefaultBasePath = "/plugins/teamcity-browser-notify/com/github/grundic/browser/notificator"

	grantedIcon = "/img/permission_granted.png"
	deniedIcon  = "/img/permission_denied.png"
	testIcon    = "/img/teamcity_logo.png"

	grantedText     = "Browser notifications are supported and enabled."
	deniedText      = "Access to browser notifications is denied. Please, accept request from browser in order to get notified."
	unsupportedText = "Unfortunately, browser notification is not supported on your browser."

	TestTitle   = "Test notification"
	TestTimeout = 5 * time.Second
)

var ErrRequestInFlight = errors.New("permission request already in flight")

// Presenter is the part of the settings page the controller writes to.
type Presenter interface {
	SetStatus(icon, text string)
	SetControlVisible(id string, visible bool)
}

type Controller struct {
	notifier  notify.Notifier
	presenter Presenter
	hostURL   string
	basePath  string
	log       *logger.UPPLogger

	lock    *sync.Mutex
	pending bool
}

// NewController creates a controller. hostURL is the scheme and host the
// settings page is served from; basePath is the plugin's resource path.
func NewController(n notify.Notifier, p Presenter, hostURL, basePath string, log *logger.UPPLogger) *Controller {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return &Controller{
		notifier:  n,
		presenter: p,
		hostURL:   hostURL,
		basePath:  basePath,
		log:       log,
		lock:      &sync.Mutex{},
	}
}

// ShowPermissionsInfo queries the notifier and shows the matching state.
// Support is only checked when permission still has to be requested.
func (c *Controller) ShowPermissionsInfo() State {
	c.lock.Lock()
	defer c.lock.Unlock()

	state := Granted
	if c.notifier.NeedsPermission() {
		state = Denied
		if !c.notifier.IsSupported() {
			state = Unsupported
		}
	}
	c.apply(state)
	return state
}

func (c *Controller) OnPermissionGranted() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.apply(Granted)
}

func (c *Controller) OnPermissionDenied() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.apply(Denied)
}

func (c *Controller) OnNotSupported() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.apply(Unsupported)
}

func (c *Controller) apply(state State) {
	switch state {
	case Granted:
		c.presenter.SetStatus(c.basePath+grantedIcon, grantedText)
		c.presenter.SetControlVisible(RequestControl, false)
		c.presenter.SetControlVisible(TestControl, true)
	case Denied:
		c.presenter.SetStatus(c.basePath+deniedIcon, deniedText)
		c.presenter.SetControlVisible(TestControl, false)
		c.presenter.SetControlVisible(RequestControl, true)
	case Unsupported:
		c.presenter.SetStatus(c.basePath+deniedIcon, unsupportedText)
		c.presenter.SetControlVisible(RequestControl, false)
		c.presenter.SetControlVisible(TestControl, false)
	}
	c.log.WithField("permission", string(state)).Debug("Permission state shown")
}

// RequestNotificationAccess asks the notifier for permission in the
// background. The returned channel yields the resulting state once and is
// then closed. Only one request may be in flight.
func (c *Controller) RequestNotificationAccess(ctx context.Context) (<-chan State, error) {
	c.lock.Lock()
	if c.pending {
		c.lock.Unlock()
		return nil, ErrRequestInFlight
	}
	c.pending = true
	c.lock.Unlock()

	result := make(chan State, 1)
	go func() {
		defer close(result)

		granted, err := c.notifier.RequestPermission(ctx)
		if err != nil {
			c.log.WithError(err).Warn("Notification permission request failed")
			granted = false
		}

		state := Denied
		if granted {
			state = Granted
		}

		c.lock.Lock()
		c.apply(state)
		c.pending = false
		c.lock.Unlock()

		c.log.WithField("permission", string(state)).Info("Notification permission request completed")
		result <- state
	}()
	return result, nil
}

// ShowTestNotification shows text as a short-lived notification. It does not
// check the permission state.
func (c *Controller) ShowTestNotification(text string) error {
	err := c.notifier.Show(notify.Notification{
		Title:   TestTitle,
		Body:    text,
		Icon:    c.hostURL + c.basePath + testIcon,
		Timeout: TestTimeout,
	})
	if err != nil {
		c.log.WithError(err).Error("Cannot show test notification")
	}
	return err
}
