package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opencensus.io/plugin/ochttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bionicotaku/lingo-utils-tokenauth/internal/clog"
	"github.com/bionicotaku/lingo-utils-tokenauth/internal/httpapi"
	"github.com/bionicotaku/lingo-utils-tokenauth/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

var globalThrottlers = []string{"short", "medium", "long"}

type serveCmd struct{}

func (c *serveCmd) Run(cfg *Config) error {
	svc, err := loadServices(cfg.EnvFile)
	if err != nil {
		return err
	}
	logger, err := clog.New(svc.conf.App.LogLevel, !svc.conf.IsProduction())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	clog.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", svc.conf.Addr())
	if err != nil {
		return err
	}
	return serve(ctx, svc, logger, ln)
}

// serve runs the HTTP server on ln until ctx is done, then drains it.
func serve(ctx context.Context, svc *services, logger *zap.Logger, ln net.Listener) error {
	conf := svc.conf
	rl := conf.Security.RateLimit

	var (
		store   ratelimit.Store
		cleanup *ratelimit.MemoryStore
	)
	if conf.Redis.URL != "" {
		rs, client, err := ratelimit.NewRedisStoreFromURL(ctx, conf.Redis.URL)
		if err != nil {
			ln.Close()
			return err
		}
		defer client.Close()
		store = rs
	} else {
		cleanup = ratelimit.NewMemoryStore(ratelimit.WithLogger(logger))
		store = cleanup
	}

	throttlers := make([]ratelimit.Throttler, 0, len(globalThrottlers))
	for _, name := range globalThrottlers {
		window, limit := rl.Window(name)
		throttlers = append(throttlers, ratelimit.Throttler{Name: name, Limit: limit, Window: window})
	}
	limiter, err := ratelimit.New(store, throttlers...)
	if err != nil {
		ln.Close()
		return err
	}
	tokenWindow, tokenLimit := rl.Window("token")

	handler, err := httpapi.New(httpapi.Config{
		Issuer:        svc.issuer,
		Validator:     svc.validator,
		Limiter:       limiter,
		IssueThrottle: ratelimit.Throttler{Name: "short", Limit: tokenLimit, Window: tokenWindow},
		Logger:        logger,
		Prefix:        conf.RoutePrefix(),
		CORSOrigins:   conf.Security.CORSOrigins,
		Production:    conf.IsProduction(),
		TrustProxy:    conf.Security.TrustProxy,
	})
	if err != nil {
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           &ochttp.Handler{Handler: handler},
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	if cleanup != nil {
		g.Go(func() error { return cleanup.Run(ctx) })
	}
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("prefix", conf.RoutePrefix()),
			zap.Bool("production", conf.IsProduction()),
			zap.Int("allowed_users", conf.Allowlist().Len()),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
