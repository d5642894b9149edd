package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/twin3"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds the graceful drain of in-flight requests.
const ShutdownTimeout = 5 * time.Second

// Serve listens on addr and serves the HTTP API until ctx is canceled.
func Serve(ctx context.Context, app *twin3.App, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ServeListener(ctx, app, ln)
}

// ServeListener serves the HTTP API on ln until ctx is canceled.
func ServeListener(ctx context.Context, app *twin3.App, ln net.Listener) error {
	srv := &http.Server{
		Handler:           app.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Logger.Info("Starting twin3 server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Warn("Graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			return srv.Close()
		}
		app.Logger.Info("twin3 server stopped gracefully")
		return nil
	})
	return g.Wait()
}
