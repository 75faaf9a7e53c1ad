package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/example/ucs-gateway/internal/command"
	"github.com/example/ucs-gateway/internal/common"
	"github.com/example/ucs-gateway/internal/directory"
	"github.com/example/ucs-gateway/internal/gateway"
	"github.com/example/ucs-gateway/internal/store"
	"github.com/example/ucs-gateway/internal/ucs"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("gateway")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := common.NewLoggerWithLevel(cfg.ServiceName, cfg.LogLevel)
	shutdown, err := common.SetupOTel(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise telemetry")
	}
	defer common.ShutdownTelemetry(context.Background(), shutdown)

	metricsSrv := common.StartMetricsServer(cfg.MetricsPort, logger)
	defer metricsSrv.Shutdown(context.Background())

	st, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	dir, err := openDirectory(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("directory")
	}

	outbound := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.OutboundTopic,
		Balancer: &kafka.Hash{},
	}
	defer outbound.Close()
	events := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Topic:    cfg.EventsTopic,
		Balancer: &kafka.Hash{},
	}
	defer events.Close()

	cmds := gateway.NewCommands()
	gw := gateway.New(cmds, logger)

	backend := ucs.Backend{
		Store:     st,
		Directory: dir,
		Outbound:  ucs.NewPublisher(outbound),
		Events:    ucs.NewPublisher(events),
		ReaderFactory: func() ucs.Reader {
			return kafka.NewReader(eventsReaderConfig(cfg))
		},
		Broadcaster: gw,
		ServerID:    cfg.ServerID,
		Channels:    ucs.DefaultChannels,
		Probe: func(ctx context.Context) error {
			conn, err := kafka.DialContext(ctx, "tcp", cfg.KafkaBrokers[0])
			if err != nil {
				return err
			}
			return conn.Close()
		},
		Logger: logger,
	}
	sessions := ucs.NewManager(backend.NewSession, logger)
	defer sessions.Close()

	command.Register(cmds, command.Deps{
		Sessions: sessions,
		Initial: command.InitialConfiguration{
			ServerID:      cfg.ServerID,
			WSPath:        cfg.WSPath,
			KafkaBrokers:  cfg.KafkaBrokers,
			OutboundTopic: cfg.OutboundTopic,
			EventsTopic:   cfg.EventsTopic,
			Channels:      ucs.DefaultChannels,
		},
	})

	wsServer := &gateway.Server{
		Gateway:    gw,
		Path:       cfg.WSPath,
		FrameRate:  float64(cfg.WSFrameRate),
		FrameBurst: cfg.WSFrameBurst,
		Logger:     logger,
	}
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: wsServer.Router(),
	}

	go func() {
		logger.Info().Int("port", cfg.HTTPPort).Str("path", cfg.WSPath).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("gateway server failed")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	wsServer.CloseAll()
}

func openStore(ctx context.Context, cfg *common.Config, logger zerolog.Logger) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, keeping messages in memory")
		return store.NewMemory(), func() {}
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	pg, err := store.NewPostgres(pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres store")
	}
	if err := pg.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate postgres")
	}
	return pg, pool.Close
}

func openDirectory(cfg *common.Config) (directory.Resolver, error) {
	switch {
	case cfg.DirectoryURL != "":
		return directory.NewHTTP(cfg.DirectoryURL), nil
	case cfg.DirectoryFile != "":
		static, err := directory.LoadFile(cfg.DirectoryFile)
		if err != nil {
			return nil, err
		}
		return static, nil
	default:
		return directory.NewMock(), nil
	}
}

// eventsReaderConfig reads the events topic for broadcast. Each instance needs
// every event for its own sessions, so the group is per server. SERVER_ID should
// be stable across restarts; a new id starts a new group, which begins at the
// live end of the topic instead of replaying history.
func eventsReaderConfig(cfg *common.Config) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.ServiceName + "-" + cfg.ServerID,
		Topic:       cfg.EventsTopic,
		StartOffset: kafka.LastOffset,
	}
}
