package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"socket-relay/config"
	"socket-relay/core"
	"socket-relay/handlers/api/health"
	"socket-relay/handlers/api/rooms"
	"socket-relay/handlers/websocket"
	"socket-relay/relay"
	"socket-relay/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func setupRouter(cfg *config.Config, relaySrv *relay.Server, store core.ActivityStore, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsOptions := cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return allowOrigin(cfg.Socket.AllowedOrigins, origin)
		},
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	r.Use(cors.Handler(corsOptions))

	r.Get("/healthz", health.HandleHealth(relaySrv))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", rooms.HandleList(relaySrv, store))
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", rooms.HandleGet(relaySrv, store))
			r.Delete("/", rooms.HandleDelete(store))
		})
	})

	return r
}

// allowOrigin accepts the configured origins, or any loopback origin when
// none are configured.
func allowOrigin(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	if len(allowed) > 0 {
		for _, candidate := range allowed {
			if candidate == "*" || strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch parsed.Scheme {
	case "http", "https":
		switch parsed.Hostname() {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
	}
	return false
}

func waitForShutdown(httpSrv *http.Server, ioo *socketio.Server, relaySrv *relay.Server, store core.ActivityStore) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	<-ctx.Done()

	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown")
	}

	ioo.Close(nil)
	if err := relaySrv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("Relay shutdown incomplete")
	}
	if err := store.Close(); err != nil {
		logrus.WithError(err).Warn("Failed to close activity store")
	}
	logrus.Info("Shutdown complete")
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	logLevel := flag.String("loglevel", "", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", "", "Set the server listen address")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if err := cfg.ConfigureLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}

	store, err := stores.GetStore(cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open activity store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := relay.NewMetrics(reg)

	relaySrv := relay.NewServer(relay.Options{
		SendQueueSize:  cfg.Relay.SendQueueSize,
		MaxRoomMembers: cfg.Relay.MaxRoomMembers,
		MaxNameLength:  cfg.Relay.MaxNameLength,
	}, store, metrics)

	r := setupRouter(cfg, relaySrv, store, reg)
	ioo := websocket.SetupSocketIO(relaySrv, cfg.Socket)
	r.Handle(strings.TrimSuffix(cfg.Socket.Path, "/")+"/", ioo.ServeHandler(nil))

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logrus.WithField("addr", cfg.Listen).Info("starting server")
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(httpSrv, ioo, relaySrv, store)
}
