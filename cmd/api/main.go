package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/accounts"
	"github.com/ariefcatur/go-wholesale-orders/internal/auth"
	"github.com/ariefcatur/go-wholesale-orders/internal/config"
	"github.com/ariefcatur/go-wholesale-orders/internal/console"
	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/ariefcatur/go-wholesale-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-wholesale-orders/internal/kafka"
	"github.com/ariefcatur/go-wholesale-orders/internal/logger"
	"github.com/ariefcatur/go-wholesale-orders/internal/metrics"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/postgres"
	"github.com/ariefcatur/go-wholesale-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		zl.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		zl.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, zl)
	pCreated.Start(ctx)
	pChanged := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, zl)
	pChanged.Start(ctx)
	emitter := &kafkax.Emitter{
		Producers: map[string]*kafkax.Producer{
			orders.EventOrderCreated:       pCreated,
			orders.EventOrderStatusChanged: pChanged,
		},
		Service: cfg.ServiceName,
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	store := &orders.Repo{DB: db, Feed: &orders.Feed{Redis: rdb}}
	svc := &fulfillment.Service{
		Store:          store,
		Events:         emitter,
		Log:            zl.Named("fulfillment"),
		Metrics:        m,
		DefaultCourier: cfg.DefaultCourier,
		Concurrency:    cfg.BatchConcurrency,
	}
	consoles := &console.Registry{
		Store:       store,
		Batch:       svc,
		Directory:   &accounts.Cached{Next: accounts.NewClient(cfg.AccountsURL), Redis: rdb},
		Location:    cfg.OrderTimeZone,
		Log:         zl.Named("console"),
		IdleTimeout: 30 * time.Minute,
	}
	go consoles.RunReaper(ctx, time.Minute)

	router := httpx.NewRouter(&httpx.Server{
		Service:  svc,
		Consoles: consoles,
		Tokens:   auth.Tokens{Secret: []byte(cfg.JWTSecret)},
		Redis:    rdb,
		Metrics:  m,
		Log:      zl,
		Location: cfg.OrderTimeZone,
	})

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		zl.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("tz", cfg.OrderTimeZone.String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zl.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	consoles.Shutdown()
	pCreated.Close() // close inbox so the writer flushes
	pChanged.Close()
	cancel()
	pCreated.WaitClosed()
	pChanged.WaitClosed()
}
