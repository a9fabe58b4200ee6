package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	logger "github.com/Financial-Times/go-logger/v2"
	"github.com/gorilla/mux"
	"github.com/grundic/browser-notifier/resources"
	metrics "github.com/rcrowley/go-metrics"
)

type pushChannel interface {
	Init(ctx context.Context) error
	ConnectivityCheck() error
	Transport() string
	Since() time.Time
	Subscribers() int
}

func initRouter(r *mux.Router,
	permissions *resources.PermissionHandler,
	channel pushChannel,
	registry metrics.Registry,
	hc *resources.HealthCheck,
	log *logger.UPPLogger) {

	r.HandleFunc("/notifications/permission", permissions.Status).Methods("GET")
	r.HandleFunc("/notifications/permission/request", permissions.Request).Methods("POST")
	r.HandleFunc("/notifications/test", permissions.TestNotification).Methods("POST")
	r.HandleFunc("/__stats", resources.Stats(channel, registry, log)).Methods("GET")

	hc.RegisterHandlers(r)
}

// startService opens the push channel and starts serving srv. The channel
// stays open until ctx is done; the returned func shuts srv down.
func startService(ctx context.Context, srv *http.Server, channel pushChannel, log *logger.UPPLogger) (func(time.Duration), error) {
	if err := channel.Init(ctx); err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithField("addr", srv.Addr).Info("Started serving.")
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server")
		}
		log.Info("Finished serving.")
	}()

	return func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		log.Info("Shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("failed to gracefully shutdown the server")
		}
		wg.Wait()
	}, nil
}
