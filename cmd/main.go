package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-client/internal/api"
	"github.com/fathima-sithara/realtime-client/internal/auth"
	"github.com/fathima-sithara/realtime-client/internal/config"
	"github.com/fathima-sithara/realtime-client/internal/discovery"
	"github.com/fathima-sithara/realtime-client/internal/httpclient"
	"github.com/fathima-sithara/realtime-client/internal/kafka"
	"github.com/fathima-sithara/realtime-client/internal/logger"
	"github.com/fathima-sithara/realtime-client/internal/messaging"
	metrics "github.com/fathima-sithara/realtime-client/internal/metric"
	"github.com/fathima-sithara/realtime-client/internal/models"
	"github.com/fathima-sithara/realtime-client/internal/notification"
	"github.com/fathima-sithara/realtime-client/internal/server"
	"github.com/fathima-sithara/realtime-client/internal/ws"
)

func main() {
	path := flag.String("config", envOr("CONFIG_PATH", "config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Development: cfg.Development(), Level: cfg.App.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Errorf("agent exited: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1) session
	store, closeStore := sessionStore(cfg)
	defer closeStore()
	sess, err := loadSession(ctx, store, log)
	if err != nil {
		return err
	}
	log.Infow("session loaded", "user", sess.User.ID, "name", sess.User.Name)

	// 2) upstream endpoints
	ep, err := discovery.Resolve(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("resolve endpoints: %w", err)
	}

	// 3) REST
	hc := httpclient.NewClient(httpclient.ClientConfig{
		Timeout:         cfg.APITimeout,
		RetryMaxElapsed: cfg.RetryMaxElapsed,
		MaxIdleConns:    cfg.API.MaxIdleConns,
		Breaker: httpclient.BreakerConfig{
			Name:        "chat-api",
			MaxFailures: cfg.Breaker.MaxFailures,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout,
		},
	}, log)
	restAPI, err := api.NewClient(ep.APIBaseURL, hc, func() string { return sess.Token }, log)
	if err != nil {
		return fmt.Errorf("api client: %w", err)
	}

	// 4) realtime transport; a refused handshake leaves the agent in REST-only mode
	wsClient := ws.NewClient(ws.Options{
		URL:            ep.WSURL,
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		TypingRPS:      cfg.WS.TypingRPS,
		Logger:         log,
	})
	rt := ws.NewSession(wsClient)
	if err := rt.Acquire(ctx, sess.Token); err != nil {
		log.Warnf("realtime unavailable, continuing without live updates: %v", err)
	}
	defer rt.Release()

	// 5) notifications
	inbox := notification.NewStore(cfg.NotificationTTL, log)
	feed := notification.NewFeed(inbox, sess.User.ID)
	feed.Attach(rt.Transport())
	defer feed.Detach()

	if len(cfg.Kafka.Brokers) > 0 {
		prod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, log)
		detach := prod.Attach(inbox)
		go prod.Run(ctx)
		defer func() {
			detach()
			closeCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := prod.Close(closeCtx); err != nil {
				log.Warnf("kafka producer close: %v", err)
			}
		}()
		log.Infow("exporting notifications", "topic", cfg.Kafka.TopicNotifications)
	}

	// 6) chat view
	view := messaging.New(messaging.Deps{
		API:         restAPI,
		Transport:   rt.Transport(),
		Notifier:    inbox,
		Logger:      log,
		CurrentUser: sess.User,
		TypingIdle:  cfg.TypingIdle,
	})
	defer view.Close()
	if err := view.Start(ctx); err != nil {
		log.Warnf("initial conversation load failed: %v", err)
	}
	if err := view.LoadUsers(ctx); err != nil {
		log.Warnf("user directory load failed: %v", err)
	}

	// 7) local HTTP surface
	srv := server.New(server.Deps{
		Chat:      view,
		Inbox:     inbox,
		Connected: wsClient.Connected,
		Logger:    log,
	})

	errs := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.App.ListenAddr)
		errs <- srv.Listen(cfg.App.ListenAddr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		return fmt.Errorf("server: %w", err)
	case s := <-sig:
		log.Infof("signal received: %v", s)
	}

	done := make(chan struct{})
	go func() {
		if err := srv.Shutdown(); err != nil {
			log.Warnf("http shutdown: %v", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("http shutdown timed out")
	}
	log.Info("shutting down")
	return nil
}

func sessionStore(cfg *config.Config) (auth.Store, func()) {
	if cfg.Session.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return auth.NewRedisStore(rdb, cfg.Session.KeyPrefix), func() { _ = rdb.Close() }
	}
	return auth.NewFileStore(cfg.Session.Path), func() {}
}

// loadSession returns the stored session. When none is usable and
// CHAT_TOKEN is set, a new session is derived from it and saved.
func loadSession(ctx context.Context, store auth.Store, log *zap.SugaredLogger) (auth.Session, error) {
	sess, err := store.Load(ctx)
	if err == nil {
		err = sess.Valid()
	}
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrTokenExpired) && !errors.Is(err, auth.ErrInvalidToken) {
		return auth.Session{}, fmt.Errorf("load session: %w", err)
	}

	token := os.Getenv("CHAT_TOKEN")
	if token == "" {
		return auth.Session{}, fmt.Errorf("no usable session (%w); set CHAT_TOKEN to sign in", err)
	}
	sess, err = auth.NewSession(token, models.User{})
	if err != nil {
		return auth.Session{}, fmt.Errorf("CHAT_TOKEN: %w", err)
	}
	if err := store.Save(ctx, sess); err != nil {
		log.Warnf("session not persisted: %v", err)
	}
	return sess, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
