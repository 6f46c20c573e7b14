package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coursecast/server/internal/controller"
	"github.com/coursecast/server/internal/event"
	"github.com/coursecast/server/internal/repository/connection/inmemory"
	fanout "github.com/coursecast/server/internal/repository/fanout/redis"
	"github.com/coursecast/server/internal/repository/progress/gormrepo"
	"github.com/coursecast/server/internal/service/chat"
	"github.com/coursecast/server/internal/service/progress"
	"github.com/coursecast/server/internal/service/session"
	"github.com/coursecast/server/pkg/ctxlogger"
	"github.com/coursecast/server/pkg/pgclient"
	"github.com/coursecast/server/pkg/redisclient"
)

type iBroadcaster interface {
	Broadcast(ctx context.Context, courseId string, ev event.Outbound, excludeConnId string)
}

type AppConfig struct {
	Secret                string        `json:"-"`
	Host                  string        `json:"host"`
	Port                  int           `json:"port"`
	LogLevel              string        `json:"log_level"`
	DatabaseDSN           string        `json:"-"`
	DatabaseMaxOpenConns  int           `json:"database_max_open_conns"`
	DatabaseAutoMigrate   bool          `json:"database_auto_migrate"`
	RedisEnabled          bool          `json:"redis_enabled"`
	RedisHost             string        `json:"redis_host"`
	RedisPort             int           `json:"redis_port"`
	RedisPassword         string        `json:"-"`
	TypingTTL             time.Duration `json:"typing_ttl"`
	MessageMaxLength      int           `json:"message_max_length"`
	AllowAnonymous        bool          `json:"allow_anonymous"`
	MaxConnectionsPerUser int           `json:"max_connections_per_user"`
	SendBufferSize        int           `json:"send_buffer_size"`
	SessionTTL            time.Duration `json:"session_ttl"`
	AllowedOrigins        []string      `json:"allowed_origins"`
}

func (cfg *AppConfig) Validate() error {
	var errs []error

	if cfg.Secret == "" {
		errs = append(errs, errors.New("secret must be set"))
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port))
	}
	if cfg.DatabaseDSN == "" {
		errs = append(errs, errors.New("database dsn must be set"))
	}
	if cfg.TypingTTL <= 0 {
		errs = append(errs, errors.New("typing ttl must be greater than 0"))
	}
	if cfg.MessageMaxLength < 1 {
		errs = append(errs, errors.New("message max length must be greater than 0"))
	}
	if cfg.MaxConnectionsPerUser < 0 {
		errs = append(errs, errors.New("max connections per user must not be negative"))
	}
	if cfg.SendBufferSize < 1 {
		errs = append(errs, errors.New("send buffer size must be greater than 0"))
	}
	if cfg.RedisEnabled && cfg.RedisHost == "" {
		errs = append(errs, errors.New("redis host must be set when redis is enabled"))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", cfg.LogLevel))
	}

	return errors.Join(errs...)
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		logLevel = slog.LevelInfo
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(h)
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := pgclient.NewClient(ctx, &pgclient.Config{
		DSN:             cfg.DatabaseDSN,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxOpenConns / 2,
		ConnMaxIdleTime: time.Minute,
		ConnMaxLifetime: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create database client: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer sqlDB.Close()

	progressRepo := gormrepo.NewRepo(db, logger)
	if cfg.DatabaseAutoMigrate {
		if err := progressRepo.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	registry := chat.NewRegistry(logger)

	var broadcaster iBroadcaster = registry

	fanoutCtx, stopFanout := context.WithCancel(ctx)
	defer stopFanout()
	fanoutDone := make(chan error, 1)

	if cfg.RedisEnabled {
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Port:     cfg.RedisPort,
			Host:     cfg.RedisHost,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer rc.Close()

		f := fanout.NewFanout(rc, registry, cfg.SendBufferSize*4, logger)
		broadcaster = f
		go func() {
			fanoutDone <- f.Run(fanoutCtx)
		}()
	} else {
		close(fanoutDone)
	}

	presence := chat.NewPresence(broadcaster, &chat.PresenceConfig{TTL: cfg.TypingTTL}, logger)
	relay := chat.NewRelay(broadcaster, &chat.RelayConfig{MaxLength: cfg.MessageMaxLength}, logger)
	connectionRepo := inmemory.NewRepo(logger)
	gateway := chat.NewGateway(registry, presence, relay, connectionRepo, &chat.GatewayConfig{
		AllowAnonymous:        cfg.AllowAnonymous,
		MaxConnectionsPerUser: cfg.MaxConnectionsPerUser,
	}, logger)

	sessionService := session.NewService(&session.Config{
		Secret: cfg.Secret,
		TTL:    cfg.SessionTTL,
	})
	progressService := progress.NewService(progressRepo, nil, logger)

	controller := controller.NewController(gateway, progressService, sessionService, &controller.Config{
		SendBufferSize: cfg.SendBufferSize,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           controller.GetMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		// hijacked websocket connections are not tracked by the server
		gateway.Shutdown(shutdownCtx)

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	go func() {
		if err, ok := <-fanoutDone; ok && err != nil {
			logger.ErrorContext(ctx, "fanout stopped", "error", err)
		}
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()
	stopFanout()

	logger.InfoContext(ctx, "server stopped")

	return nil
}
