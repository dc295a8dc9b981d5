package server

import (
	"context"
	"time"

	"SignalScan/internal/usecase"
	"SignalScan/pkg/config"
	xhttp "SignalScan/pkg/http"
	applogger "SignalScan/pkg/logger"
)

// App owns the HTTP server and the scan session for the lifetime of `serve`.
type App struct {
	cfg        *config.Config
	httpServer *xhttp.Server
	session    *usecase.ScanSession
	l          *applogger.Logger
}

func New(cfg *config.Config, httpServer *xhttp.Server, session *usecase.ScanSession, l *applogger.Logger) *App {
	return &App{
		cfg:        cfg,
		httpServer: httpServer,
		session:    session,
		l:          l,
	}
}

// Session exposes the scan session, e.g. for a startup scan.
func (a *App) Session() *usecase.ScanSession { return a.session }

// Run starts the HTTP server and blocks until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("signalscan started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Strings("endpoints", a.cfg.API.Endpoints),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case runErr = <-a.httpServer.Errors():
	}

	a.shutdown()
	return runErr
}

// shutdown stops the running scan cooperatively, then the HTTP server.
func (a *App) shutdown() {
	if a.session.Stop() {
		a.l.Info("waiting for running scan to stop")
		done := make(chan struct{})
		go func() {
			a.session.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(a.cfg.Server.ShutdownTimeout):
			a.l.Warn("scan did not stop before shutdown timeout")
		}
	}

	if err := a.httpServer.Stop(context.Background()); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	a.l.Info("shutdown complete")
}
