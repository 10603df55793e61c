package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"filedrop.local/internal/platform/config"
	"golang.org/x/sync/errgroup"
)

// New 对外服务，监听 cfg.Addr
func New(cfg config.Config, handler http.Handler) *http.Server {
	return NewWithAddr(cfg, cfg.Addr, handler)
}

// NewWithAddr admin 服务复用同一套超时
func NewWithAddr(cfg config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
}

// RunWithGracefulShutdownContext 阻塞到 stopCtx 结束或监听失败。
// 正常关闭返回 nil，in-flight 请求最多等 shutdownTimeout。
func RunWithGracefulShutdownContext(srv *http.Server, shutdownTimeout time.Duration, stopCtx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-stopCtx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("http server shutting down", "addr", srv.Addr)
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// RunAll 任何一个服务退出都会带着其余的一起关闭
func RunAll(stopCtx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) error {
	g, ctx := errgroup.WithContext(stopCtx)
	for _, srv := range servers {
		g.Go(func() error {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := RunWithGracefulShutdownContext(srv, shutdownTimeout, ctx); err != nil {
				return err
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil && !(errors.Is(err, context.Canceled) && stopCtx.Err() != nil) {
		return err
	}
	return nil
}
