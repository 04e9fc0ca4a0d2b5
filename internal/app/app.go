// Package app is the composition root: it wires config.Options into the
// Session Registry, Object Registry, Dispatcher, and the wsrpc Transport,
// and owns the HTTP listener that accepts the WebSocket upgrade. Grounded
// on internal/bootstrap/app.go's App struct and NewApp/Start/Shutdown
// lifecycle, trimmed to the components this domain actually has.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"gamelobby/internal/config"
	"gamelobby/internal/dispatcher"
	"gamelobby/internal/objects"
	"gamelobby/internal/sessions"
	"gamelobby/internal/wsrpc"
)

// App holds every long-lived component and the HTTP server that exposes
// the WebSocket upgrade endpoint.
type App struct {
	Log        *logrus.Logger
	Sessions   *sessions.Registry
	Objects    *objects.Registry
	Dispatcher *dispatcher.Dispatcher
	Transport  *wsrpc.Server

	httpServer *http.Server
}

// Config is the small set of knobs NewApp needs beyond config.Options: an
// address to listen on and the path the upgrade handler is mounted at.
type Config struct {
	Options     config.Options
	Addr        string
	UpgradePath string
}

// DefaultConfig returns the reference deployment's defaults.
func DefaultConfig() Config {
	return Config{
		Options:     config.Default(),
		Addr:        ":8080",
		UpgradePath: "/ws",
	}
}

// NewApp constructs every component and wires them together, mirroring
// the teacher's numbered initialization sequence without the persistence
// and auth stages this domain has no use for.
func NewApp(cfg Config) *App {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	sessionRegistry := sessions.New(cfg.Options, log)
	objectRegistry := objects.New(cfg.Options, sessionRegistry, log)

	mux := http.NewServeMux()
	transportServer := wsrpc.NewServer(nil, nil, log)
	d := dispatcher.New(sessionRegistry, objectRegistry, transportServer, log)
	transportServer.SetDispatcher(d)

	mux.HandleFunc(cfg.UpgradePath, transportServer.HandleUpgrade)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	return &App{
		Log:        log,
		Sessions:   sessionRegistry,
		Objects:    objectRegistry,
		Dispatcher: d,
		Transport:  transportServer,
		httpServer: httpServer,
	}
}

// Start begins listening in the background. Mirrors the teacher's
// App.Start: log, then serve in its own goroutine so the caller can
// install a signal handler.
func (a *App) Start() {
	a.Log.Infof("wsrpc: listening on %s", a.httpServer.Addr)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Log.Fatalf("wsrpc: listener failed: %v", err)
		}
	}()
}

// Shutdown drains the HTTP server, mirroring the teacher's graceful
// shutdown with a bounded context timeout.
func (a *App) Shutdown() {
	a.Log.Info("app: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("app: error during shutdown: %v", err)
		return
	}
	a.Log.Info("app: shutdown complete")
}
