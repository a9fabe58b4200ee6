package resources

import (
	"encoding/json"
	"net/http"
	"time"

	logger "github.com/Financial-Times/go-logger/v2"
	metrics "github.com/rcrowley/go-metrics"
)

type pushChannel interface {
	ConnectivityCheck() error
	Transport() string
}

type statsChannel interface {
	pushChannel
	Since() time.Time
	Subscribers() int
}

type channelStats struct {
	Connected   bool             `json:"connected"`
	Transport   string           `json:"transport,omitempty"`
	Since       string           `json:"since,omitempty"`
	Subscribers int              `json:"subscribers"`
	Counters    map[string]int64 `json:"counters"`
}

// Stats returns push channel stats
func Stats(channel statsChannel, registry metrics.Registry, log *logger.UPPLogger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := channelStats{
			Connected:   channel.ConnectivityCheck() == nil,
			Transport:   channel.Transport(),
			Subscribers: channel.Subscribers(),
			Counters:    map[string]int64{},
		}
		if since := channel.Since(); !since.IsZero() {
			stats.Since = since.UTC().Format(time.RFC3339)
		}
		registry.Each(func(name string, i interface{}) {
			if c, ok := i.(metrics.Counter); ok {
				stats.Counters[name] = c.Count()
			}
		})

		bytes, err := json.Marshal(stats)
		if err != nil {
			log.WithError(err).Warn("Error in marshalling stats information")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-type", "application/json")
		b, err := w.Write(bytes)
		if b == 0 {
			log.Warn("Response written to HTTP was empty.")
		}

		if err != nil {
			log.Warnf("Error writing stats to HTTP response: %v", err.Error())
		}
	}
}
