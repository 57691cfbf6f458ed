package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stake-plus/guildgov/src/actions"
	sharedconfig "github.com/stake-plus/guildgov/src/config"
	shareddata "github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/metrics"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Printf)); err != nil {
		log.Printf("maxprocs: %v", err)
	}

	dsn, err := shareddata.GetMySQLDSN()
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	db, err := shareddata.Connect(dsn)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := shareddata.Migrate(db); err != nil {
		log.Fatalf("db: %v", err)
	}

	cfg := sharedconfig.LoadGovernanceConfig(db)
	apiCfg := sharedconfig.LoadAPIConfig()

	rdb, err := shareddata.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if rdb == nil {
		log.Printf("redis: not configured, using in-process scan locks and no event stream")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager, err := actions.StartAll(ctx, &cfg, apiCfg, db, rdb, metrics.New(prometheus.DefaultRegisterer))
	if err != nil {
		log.Fatalf("actions start: %v", err)
	}

	// Wait for termination
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Printf("shutting down")

	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	if err := manager.Stop(shutCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
