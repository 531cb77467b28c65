package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/screenbroker/broker/internal/adminapi"
	"github.com/screenbroker/broker/internal/broker"
	"github.com/screenbroker/broker/internal/config"
	"github.com/screenbroker/broker/internal/events"
	"github.com/screenbroker/broker/internal/provider"
	"github.com/screenbroker/broker/internal/registration"
	"github.com/screenbroker/broker/internal/repository"
	"github.com/screenbroker/broker/internal/repository/gormrepo"
	"github.com/screenbroker/broker/internal/repository/memrepo"
	"github.com/screenbroker/broker/internal/roomsvc"
	"github.com/screenbroker/broker/internal/server"
	"github.com/screenbroker/broker/internal/session"
	"github.com/screenbroker/broker/internal/signaling"
)

func main() {
	cfgFile := flag.String("config", "", "path to a broker.yaml config file")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("broker exited with error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	return zcfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	repos, closeRepo, err := openRepository(cfg, logger)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer closeRepo()

	rt := provider.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.AppSecret, cfg.Timing.ProviderTimeout, logger)

	publisher, err := openEventBacking(cfg, logger)
	if err != nil {
		return fmt.Errorf("open event backing: %w", err)
	}
	evts := events.NewPublisher(publisher, logger, cfg.Events.QueueSize)
	defer evts.Close(context.Background())

	credentials := registration.NewStaticCredentials(cfg.APIKeyPairs(), cfg.Auth.TokenSecret)
	reg := registration.NewHandler(repos.clients, credentials, evts, nil, logger)
	rooms := roomsvc.New(
		roomsvc.Config{AppID: cfg.Provider.AppID, StunURL: cfg.Provider.StunURL},
		reg, repos.rooms, repos.memberships, repos.terminations, repos.audits,
		rt, evts, logger,
	)
	reg.SetLeaver(rooms)

	cleanup := func(ctx context.Context, clientID string, reason session.CloseReason) {
		if err := rooms.LeaveAllForClientSystem(ctx, clientID); err != nil {
			logger.Warn("session close cleanup failed", zap.String("client_id", clientID), zap.Error(err))
		}
	}

	sessCfg := session.Config{
		RegistrationTimeout: cfg.Timing.RegistrationTimeout,
		HeartbeatInterval:   cfg.Timing.HeartbeatInterval,
		HeartbeatTimeout:    cfg.Timing.HeartbeatTimeout,
		SendQueueSize:       256,
		MaxMessageSize:      cfg.Server.MaxMessageSize,
	}
	sessions := session.NewManager(sessCfg, logger, evts, cleanup)
	sig := signaling.NewHandler(broker.NewRouter(sessions))
	dispatch := broker.New(sessions, reg, rooms, sig, logger)

	srv := server.New(cfg, sessions, dispatch, logger)
	admin := adminapi.New(adminapi.Config{
		TokenSecret: cfg.Auth.TokenSecret, DefaultTokenTTL: cfg.Admin.DefaultTokenTTL, MaxTokenTTL: cfg.Admin.MaxTokenTTL,
	}, repos.rooms, logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	serverErrors := make(chan error, 2)
	go func() {
		serverErrors <- srv.ListenAndServe(ctx)
	}()
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port)
		logger.Info("admin plane listening", zap.String("addr", addr))
		serverErrors <- admin.Listen(addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigChan:
		logger.Info("received signal, shutting down", zap.String("signal", s.String()))
	case err := <-serverErrors:
		if err != nil {
			logger.Error("server error, shutting down", zap.Error(err))
		}
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timing.ShutdownGrace)
	defer cancel()

	srv.Shutdown(shutdownCtx)
	_ = admin.Shutdown()

	logger.Info("shutdown complete")
	return nil
}

// repoSet bundles the five repository contracts so main doesn't thread
// five separate values through the wiring above.
type repoSet struct {
	clients      repository.ClientRepository
	rooms        repository.RoomRepository
	memberships  repository.MembershipRepository
	terminations repository.TerminationRepository
	audits       repository.CreationAuditRepository
}

func openRepository(cfg *config.Config, logger *zap.Logger) (*repoSet, func(), error) {
	switch cfg.Database.Store {
	case "postgres":
		repo, err := gormrepo.Connect(logger, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return &repoSet{
			clients: repo.Clients(), rooms: repo.Rooms(), memberships: repo.Memberships(),
			terminations: repo.Terminations(), audits: repo.CreationAudits(),
		}, func() {}, nil
	default:
		store := memrepo.NewStore()
		return &repoSet{
			clients: store.Clients(), rooms: store.Rooms(), memberships: store.Memberships(),
			terminations: store.Terminations(), audits: store.CreationAudits(),
		}, func() {}, nil
	}
}

func openEventBacking(cfg *config.Config, logger *zap.Logger) (message.Publisher, error) {
	if cfg.Events.Backing == "amqp" {
		return events.NewAMQPPublisher(cfg.Events.AMQPURI, logger)
	}
	return events.NewInProcessPublisher(logger), nil
}
