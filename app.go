package main

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	logger "github.com/Financial-Times/go-logger/v2"
	"github.com/gorilla/mux"
	"github.com/grundic/browser-notifier/notify"
	"github.com/grundic/browser-notifier/permission"
	"github.com/grundic/browser-notifier/resources"
	"github.com/grundic/browser-notifier/subscription"
	"github.com/grundic/browser-notifier/transport"
	cli "github.com/jawher/mow.cli"
	metrics "github.com/rcrowley/go-metrics"
)

const (
	serviceName    = "browser-notifier"
	appDescription = "Shows build server push notifications on the desktop."
	connectBackoff = 500 * time.Millisecond
)

func main() {
	app := cli.App(serviceName, appDescription)
	baseURI := app.String(cli.StringOpt{
		Name:   "base_uri",
		Value:  "http://localhost:8111",
		Desc:   "Base URI of the build server the push channel is opened to",
		EnvVar: "BASE_URI",
	})
	iconPath := app.String(cli.StringOpt{
		Name:   "icon_path",
		Value:  subscription.DefaultIconPath,
		Desc:   "Path under base_uri where notification icons are served",
		EnvVar: "ICON_PATH",
	})
	notificationTimeout := app.Int(cli.IntOpt{
		Name:   "notification_timeout",
		Value:  int(subscription.DefaultTimeout / time.Second),
		Desc:   "Time after which pushed notifications are dismissed (in seconds).",
		EnvVar: "NOTIFICATION_TIMEOUT",
	})
	port := app.Int(cli.IntOpt{
		Name:   "port",
		Value:  8080,
		Desc:   "application port",
		EnvVar: "PORT",
	})
	connectRetries := app.Int(cli.IntOpt{
		Name:   "connect_retries",
		Value:  5,
		Desc:   "Connection retries per transport before the push channel is reported as failed",
		EnvVar: "CONNECT_RETRIES",
	})
	iconCacheDir := app.String(cli.StringOpt{
		Name:   "icon_cache_dir",
		Value:  "",
		Desc:   "Directory where notification icons are downloaded to. Icons are not shown when empty.",
		EnvVar: "ICON_CACHE_DIR",
	})
	authCookie := app.String(cli.StringOpt{
		Name:   "auth_cookie",
		Value:  "",
		Desc:   "Session cookie sent to the build server, i.e. TCSESSIONID=...",
		EnvVar: "AUTH_COOKIE",
	})
	logLevel := app.String(cli.StringOpt{
		Name:   "logLevel",
		Value:  "INFO",
		Desc:   "Logging level (DEBUG, INFO, WARN, ERROR)",
		EnvVar: "LOG_LEVEL",
	})

	app.Action = func() {
		log := logger.NewUPPLogger(serviceName, *logLevel)

		log.WithFields(map[string]interface{}{
			"BASE_URI":        *baseURI,
			"CONNECT_RETRIES": *connectRetries,
			"ICON_CACHE_DIR":  *iconCacheDir,
		}).Info("[Startup] browser-notifier is starting ")

		hostURL, err := hostOf(*baseURI)
		if err != nil {
			log.WithError(err).Fatal("cannot parse base_uri")
		}

		httpClient := &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost:   20,
				TLSHandshakeTimeout:   3 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		}

		var notifierOpts []notify.DesktopOption
		if *iconCacheDir != "" {
			notifierOpts = append(notifierOpts, notify.WithIconCache(*iconCacheDir, httpClient))
		}
		notifier := notify.NewDesktop(log, notifierOpts...)

		board := resources.NewStatusBoard()
		ctrl := permission.NewController(notifier, board, hostURL, permission.DefaultBasePath, log)
		state := ctrl.ShowPermissionsInfo()
		log.WithField("permission", string(state)).Info("Notification permission checked")

		registry := metrics.NewRegistry()
		client := transport.NewClient(httpClient, *connectRetries, connectBackoff, log)
		manager := subscription.NewManager(subscription.Config{
			BaseURI:  *baseURI,
			IconPath: *iconPath,
			Timeout:  time.Duration(*notificationTimeout) * time.Second,
			Header:   authHeader(*authCookie),
		}, client, notifier, subscription.BrowserNavigator{}, registry, log)

		router := mux.NewRouter()
		srv := &http.Server{
			Addr:    ":" + strconv.Itoa(*port),
			Handler: router,
		}

		hc := resources.NewHealthCheck(manager, notifier)
		permissions := resources.NewPermissionHandler(ctrl, board, log)
		initRouter(router, permissions, manager, registry, hc, log)

		ctx, cancel := context.WithCancel(context.Background())
		shutdown, err := startService(ctx, srv, manager, log)
		if err != nil {
			log.WithError(err).Fatal("could not start push subscription")
		}

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch

		log.Info("Termination signal received. Closing push channel and HTTP server.")
		cancel()
		shutdown(time.Second * 30)
	}

	if err := app.Run(os.Args); err != nil {
		logger.NewUPPLogger(serviceName, "INFO").WithError(err).Fatal("browser-notifier stopped")
	}
}

// hostOf returns the scheme and host part of uri.
func hostOf(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}

func authHeader(cookie string) http.Header {
	if cookie == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Cookie", cookie)
	return h
}
