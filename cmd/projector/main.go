package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ariefcatur/go-wholesale-orders/internal/config"
	kafkax "github.com/ariefcatur/go-wholesale-orders/internal/kafka"
	"github.com/ariefcatur/go-wholesale-orders/internal/logger"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/projector"
	"github.com/ariefcatur/go-wholesale-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &projector.Service{
		Cache: &projector.RedisCache{Redis: rdb, Service: cfg.ProjectorGroup},
		Log:   zl.Named("projector"),
	}

	// one consumer per topic, same group
	var wg sync.WaitGroup
	for _, topic := range []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, topic, cfg.ProjectorWorkers, zl)
		wg.Add(1)
		go func() {
			defer wg.Done()
			zl.Info("projector consumer started",
				zap.String("group", cfg.ProjectorGroup),
				zap.String("topic", topic),
				zap.Int("workers", cfg.ProjectorWorkers))
			if err := cons.Start(ctx, svc.Handle); err != nil {
				zl.Error("consumer exit", zap.String("topic", topic), zap.Error(err))
				cancel()
			}
		}()
	}

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	zl.Info("shutting down consumers")
	cancel()
	wg.Wait()
}
