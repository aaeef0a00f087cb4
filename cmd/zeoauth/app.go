package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/zeoauth/adapters/events"
	"github.com/layer-3/zeoauth/adapters/store"
	"github.com/layer-3/zeoauth/adapters/tokenizer"
	"github.com/layer-3/zeoauth/adapters/users"
	"github.com/layer-3/zeoauth/challenge"
	"github.com/layer-3/zeoauth/internal/db"
	"github.com/layer-3/zeoauth/internal/eth"
	"github.com/layer-3/zeoauth/internal/logger"
	"github.com/layer-3/zeoauth/ports"
	"github.com/layer-3/zeoauth/service"
	transport "github.com/layer-3/zeoauth/transport/http"
)

const (
	pruneInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger

	// Started with the server, stopped with its context
	background []func(ctx context.Context)

	// Released in reverse order on Close
	closers []func() error
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	l, err := logger.New(c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: l}
	defer func() {
		if err != nil {
			app.Close() // nolint:errcheck
		}
	}()

	storeCfg := store.Config{TTL: c.NonceTTL, Retention: c.NonceRetention}
	opts := []service.Option{
		service.WithLogger(l.With("component", "auth")),
		service.WithCodec(challenge.NewCodec(c.AppName)),
		service.WithUpsertTimeout(c.UpsertTimeout),
	}

	// Nonce store and login events
	var nonces ports.NonceStore
	if c.RedisURL != "" {
		redisOpts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}

		client := redis.NewClient(redisOpts)
		app.closers = append(app.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client},
			watermill.NewSlogLogger(l.With("component", "events").Slog()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
		}
		app.closers = append(app.closers, publisher.Close)

		nonces = store.NewRedisNonceStore(client, storeCfg)
		opts = append(opts, service.WithEventPublisher(events.NewWatermillPublisher(publisher)))
		l.Info("using redis nonce store")
	} else {
		memory := store.NewMemoryNonceStore(storeCfg)
		app.background = append(app.background, func(ctx context.Context) {
			memory.Run(ctx, pruneInterval)
		})

		nonces = memory
		l.Info("using in-memory nonce store")
	}

	// User directory
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		app.closers = append(app.closers, func() error {
			pool.Close()
			return nil
		})

		opts = append(opts, service.WithUserDirectory(users.NewPostgresDirectory(pool)))
	} else {
		opts = append(opts, service.WithUserDirectory(users.NewMemoryDirectory()))
	}

	tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{Secret: c.JWTSecret, TTL: c.JWTExpiresIn})
	if err != nil {
		return nil, fmt.Errorf("error while creating tokenizer: %w", err)
	}

	authService := service.NewAuthService(nonces, eth.NewVerifier(), tok, opts...)

	if c.Environment != EnvDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	app.Handler = transport.SetupRouter(authService, l.WithGroup("http"), transport.RouterConfig{
		CORSOrigins: c.CORSOrigins,
	})

	return app, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	for _, fn := range s.background {
		go fn(srvCtx)
	}

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}

// Close releases connections opened by NewServerApp
func (s *ServerApp) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
