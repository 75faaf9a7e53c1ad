package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/segmentio/kafka-go"

	"github.com/example/ucs-gateway/internal/common"
	"github.com/example/ucs-gateway/internal/dispatcher"
	"github.com/example/ucs-gateway/internal/ucs"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := common.LoadConfig("dispatcher")
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

	readerFactory := func() ucs.Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.ServiceName,
			Topic:   cfg.OutboundTopic,
		})
	}

	var mu sync.Mutex
	writerCache := map[string]*kafka.Writer{}
	writerFactory := func(topic string) ucs.Writer {
		mu.Lock()
		defer mu.Unlock()
		if w, ok := writerCache[topic]; ok {
			return w
		}
		writer := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		}
		writerCache[topic] = writer
		return writer
	}

	d := dispatcher.Dispatcher{
		ReaderFactory: readerFactory,
		WriterFactory: writerFactory,
		Events:        ucs.NewPublisher(writerFactory(cfg.EventsTopic)),
		DLQTopic:      cfg.DLQTopic,
		ServerID:      cfg.ServerID,
		Logger:        logger,
	}

	go func() {
		logger.Info().Str("topic", cfg.OutboundTopic).Msg("dispatcher service started")
		if err := d.Run(ctx); err != nil {
			logger.Fatal().Err(err).Msg("dispatcher stopped")
		}
	}()

	<-ctx.Done()
	mu.Lock()
	defer mu.Unlock()
	for _, writer := range writerCache {
		_ = writer.Close()
	}
}
