package main

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"FurniStore/internal/cache"
	"FurniStore/internal/catalog"
	"FurniStore/internal/db"
	"FurniStore/internal/maintainer"
	"FurniStore/internal/order"
	"FurniStore/internal/storefront"
	"FurniStore/internal/user"
	"FurniStore/pkg/kit"
)

type config struct {
	Port           string `envconfig:"PORT" default:"8081"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED"`
	MetricsToken   string `envconfig:"METRICS_TOKEN"`
}

func main() {
	service := "storefront"
	log := kit.NewLogger(service)
	defer func() { _ = log.Sync() }()

	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("config", zap.Error(err))
	}

	var (
		products catalog.Store
		orders   order.Store
		users    user.Store
	)
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("open database", zap.Error(err))
		}
		if err := db.Migrate(sqlDB); err != nil {
			log.Fatal("migrate database", zap.Error(err))
		}
		products = catalog.NewPostgresStore(sqlDB)
		orders = order.NewPostgresStore(sqlDB)
		users = user.NewPostgresStore(sqlDB)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		products = catalog.NewMemStore()
		orders = order.NewMemStore()
		users = user.NewMemStore()
	}

	var c cache.Cache
	if cfg.RedisAddr != "" {
		c = cache.NewRedisCache(cfg.RedisAddr)
	} else {
		log.Warn("REDIS_ADDR not set, using in-memory cache")
		c = cache.NewMemCache()
	}

	bus := maintainer.NewBus()
	bus.Subscribe(cache.NewSubscriber(c, log).Handle)

	m := maintainer.New(products, orders, users, bus, log)

	s := &storefront.Server{
		Products:   products,
		Users:      users,
		Maintainer: m,
		Cache:      c,
		Log:        log,
	}

	h := storefront.NewHandler(s, storefront.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: cfg.MetricsEnabled,
		MetricsToken:   cfg.MetricsToken,
	})

	if err := kit.RunHTTPServer(":"+cfg.Port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
