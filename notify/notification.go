package notify

import (
	"context"
	"time"
)

// Notification is the ready-to-render form of an event.
type Notification struct {
	Title   string
	Body    string
	Tag     string
	Icon    string
	URL     string
	Timeout time.Duration
	// Extra carries payload fields the bridge does not interpret.
	Extra map[string]interface{}
	// OnClick is invoked by surfaces able to report clicks. May be nil.
	OnClick func()
}

// Notifier is the notification surface: it reports support and permission
// state, requests permission and renders notifications.
type Notifier interface {
	IsSupported() bool
	NeedsPermission() bool
	// RequestPermission blocks until the user answers the prompt and
	// reports whether permission was granted.
	RequestPermission(ctx context.Context) (bool, error)
	Show(n Notification) error
}
