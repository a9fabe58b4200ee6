package resources

import (
	"errors"
	"net/http"
	"time"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
	"github.com/Financial-Times/service-status-go/gtg"
	"github.com/Financial-Times/service-status-go/httphandlers"
	"github.com/gorilla/mux"
)

const panicGuideURL = "https://github.com/grundic/teamcity-browser-notify"

type supportChecker interface {
	IsSupported() bool
}

type HealthCheck struct {
	channel  pushChannel
	notifier supportChecker
}

func NewHealthCheck(channel pushChannel, notifier supportChecker) *HealthCheck {
	return &HealthCheck{
		channel:  channel,
		notifier: notifier,
	}
}

// RegisterHandlers adds the health, good-to-go, build-info and ping endpoints.
func (h *HealthCheck) RegisterHandlers(router *mux.Router) {
	router.HandleFunc("/__health", h.Health())
	router.HandleFunc(httphandlers.GTGPath, httphandlers.NewGoodToGoHandler(h.GTG))
	router.HandleFunc(httphandlers.BuildInfoPath, httphandlers.BuildInfoHandler)
	router.HandleFunc(httphandlers.PingPath, httphandlers.PingHandler)
}

func (h *HealthCheck) Health() func(w http.ResponseWriter, r *http.Request) {

	var checks []fthealth.Check
	checks = append(checks, h.pushChannelCheck())
	checks = append(checks, h.notificationSurfaceCheck())

	hc := fthealth.TimedHealthCheck{
		HealthCheck: fthealth.HealthCheck{
			SystemCode:  "browser-notifier",
			Name:        "Browser Notifier",
			Description: "Checks if the push channel is connected and notifications can be shown.",
			Checks:      checks,
		},
		Timeout: 10 * time.Second,
	}
	return fthealth.Handler(hc)
}

func (h *HealthCheck) pushChannelCheck() fthealth.Check {
	return fthealth.Check{
		ID:               "push-channel-connected",
		Name:             "PushChannelConnected",
		Severity:         1,
		BusinessImpact:   "Build notifications will not reach the desktop.",
		TechnicalSummary: "The push channel to the build server is not connected over any transport",
		PanicGuide:       panicGuideURL,
		Checker:          h.checkPushChannel,
	}
}

func (h *HealthCheck) notificationSurfaceCheck() fthealth.Check {
	return fthealth.Check{
		ID:               "notification-surface-supported",
		Name:             "NotificationSurfaceSupported",
		Severity:         2,
		BusinessImpact:   "Notifications are received but cannot be displayed.",
		TechnicalSummary: "Desktop notifications are not supported on this platform",
		PanicGuide:       panicGuideURL,
		Checker:          h.checkNotificationSurface,
	}
}

func (h *HealthCheck) GTG() gtg.Status {
	if _, err := h.checkPushChannel(); err != nil {
		return gtg.Status{GoodToGo: false, Message: err.Error()}
	}

	return gtg.Status{GoodToGo: true}
}

func (h *HealthCheck) checkPushChannel() (string, error) {
	if err := h.channel.ConnectivityCheck(); err != nil {
		return "Push channel is not connected", err
	}
	return "Push channel connected over " + h.channel.Transport(), nil
}

func (h *HealthCheck) checkNotificationSurface() (string, error) {
	if !h.notifier.IsSupported() {
		return "", errors.New("desktop notifications are not supported")
	}
	return "Desktop notifications are supported", nil
}
