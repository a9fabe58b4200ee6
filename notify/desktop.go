package notify

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	logger "github.com/Financial-Times/go-logger/v2"
	"github.com/gen2brain/beeep"
)

const (
	probeTitle = "Browser notifications"
	probeBody  = "Notifications from the build server are enabled."
)

var supportedPlatforms = []string{"linux", "darwin", "windows", "freebsd"}

type notifyFunc func(title, message, icon string) error

// Desktop renders notifications with the operating system's notification
// daemon. The OS owns the durable grant, so permission is tracked per process.
type Desktop struct {
	log     *logger.UPPLogger
	goos    string
	granted int32
	icons   *iconCache
	notify  notifyFunc
}

type DesktopOption func(*Desktop)

// WithPermissionGranted marks the permission as already granted.
func WithPermissionGranted() DesktopOption {
	return func(d *Desktop) {
		atomic.StoreInt32(&d.granted, 1)
	}
}

// WithIconCache makes remote icons available to the notification daemon by
// downloading them into dir.
func WithIconCache(dir string, client *http.Client) DesktopOption {
	return func(d *Desktop) {
		d.icons = newIconCache(dir, client)
	}
}

func NewDesktop(log *logger.UPPLogger, opts ...DesktopOption) *Desktop {
	d := &Desktop{
		log:  log,
		goos: runtime.GOOS,
		notify: func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Desktop) IsSupported() bool {
	for _, p := range supportedPlatforms {
		if d.goos == p {
			return true
		}
	}
	return false
}

func (d *Desktop) NeedsPermission() bool {
	return atomic.LoadInt32(&d.granted) == 0
}

// RequestPermission sends a probe notification; the daemon accepting it
// counts as a grant.
func (d *Desktop) RequestPermission(ctx context.Context) (bool, error) {
	if !d.IsSupported() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := d.notify(probeTitle, probeBody, ""); err != nil {
		d.log.WithError(err).Warn("Notification daemon rejected the permission probe")
		atomic.StoreInt32(&d.granted, 0)
		return false, nil
	}

	atomic.StoreInt32(&d.granted, 1)
	d.log.Info("Desktop notifications granted")
	return true, nil
}

// Show renders n. Timeout and OnClick are left to the daemon, which
// auto-dismisses on its own schedule and does not report clicks.
func (d *Desktop) Show(n Notification) error {
	icon := d.localIcon(n.Icon)

	entry := d.log.WithField("title", n.Title).WithField("icon", icon)
	if n.Timeout > 0 {
		entry = entry.WithField("timeout", n.Timeout.Round(time.Second).String())
	}

	if err := d.notify(n.Title, n.Body, icon); err != nil {
		entry.WithError(err).Error("Failed to show desktop notification")
		return err
	}
	entry.Debug("Desktop notification shown")
	return nil
}

func (d *Desktop) localIcon(icon string) string {
	if !strings.HasPrefix(icon, "http://") && !strings.HasPrefix(icon, "https://") {
		return icon
	}
	if d.icons == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path, err := d.icons.path(ctx, icon)
	if err != nil {
		d.log.WithField("icon", icon).WithError(err).Warn("Cannot fetch notification icon")
		return ""
	}
	return path
}
