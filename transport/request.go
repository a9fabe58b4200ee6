package transport

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// transport names
const (
	WebSocket   = "websocket"
	LongPolling = "long-polling"
)

// Atmosphere query parameters understood by the build server.
const (
	trackingIDParam   = "X-Atmosphere-tracking-id"
	frameworkParam    = "X-Atmosphere-Framework"
	transportParam    = "X-Atmosphere-Transport"
	trackSizeParam    = "X-Atmosphere-TrackMessageSize"
	contentTypeParam  = "Content-Type"
	frameworkVersion  = "2.3.2-go"
	initialTrackingID = "0"
)

// Response is a single message delivered by the push channel.
type Response struct {
	Body       string
	Transport  string
	TrackingID string
}

// Request configures a subscription. It must not be modified after it has
// been passed to Subscribe.
type Request struct {
	URL                string
	ContentType        string
	TrackMessageLength bool
	Shared             bool
	Transport          string
	FallbackTransport  string
	Header             http.Header

	// OnTransportFailure is called once when no transport can connect.
	OnTransportFailure func(message string)
	// OnMessage is called for every message, in delivery order.
	OnMessage func(response Response)
}

func (r Request) validate() error {
	if r.OnMessage == nil {
		return errors.New("subscription requires an OnMessage callback")
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return errors.Wrap(err, "invalid subscription url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("unsupported url scheme %q", u.Scheme)
	}
	for _, t := range r.transports() {
		if t != WebSocket && t != LongPolling {
			return errors.Errorf("unsupported transport %q", t)
		}
	}
	return nil
}

// transports lists the transports to try, primary first.
func (r Request) transports() []string {
	primary := r.Transport
	if primary == "" {
		primary = WebSocket
	}
	ts := []string{primary}
	if r.FallbackTransport != "" && r.FallbackTransport != primary {
		ts = append(ts, r.FallbackTransport)
	}
	return ts
}

// endpoint returns the URL to connect to with transport t.
func (r Request) endpoint(t string, trackingID string) (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", errors.Wrap(err, "invalid subscription url")
	}

	q := u.Query()
	q.Set(trackingIDParam, trackingID)
	q.Set(frameworkParam, frameworkVersion)
	q.Set(transportParam, t)
	q.Set(trackSizeParam, strconv.FormatBool(r.TrackMessageLength))
	if r.ContentType != "" {
		q.Set(contentTypeParam, r.ContentType)
	}
	u.RawQuery = q.Encode()

	if t == WebSocket {
		u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	}
	return u.String(), nil
}
