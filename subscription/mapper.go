package subscription

import (
	"time"

	"github.com/grundic/browser-notifier/notify"
)

// NotificationMapper turns inbound events into desktop notifications.
type NotificationMapper struct {
	BaseURI  string
	IconPath string
	Timeout  time.Duration
}

// MapNotification resolves the event's relative icon and url against the
// base URI and attaches navigate as the click handler.
func (m NotificationMapper) MapNotification(event InboundEvent, navigate func(url string)) notify.Notification {
	target := m.BaseURI + event.URL

	n := notify.Notification{
		Title:   event.Title,
		Body:    event.Body,
		Tag:     event.Tag,
		Icon:    m.BaseURI + m.IconPath + event.Icon,
		URL:     target,
		Timeout: m.Timeout,
		Extra:   event.Extra,
	}
	if navigate != nil {
		n.OnClick = func() {
			navigate(target)
		}
	}
	return n
}
