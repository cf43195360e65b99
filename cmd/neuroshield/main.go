package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neuroshield/neuroshield/automation"
	"github.com/neuroshield/neuroshield/bridge"
	"github.com/neuroshield/neuroshield/broadcast"
	"github.com/neuroshield/neuroshield/hub"
	"github.com/neuroshield/neuroshield/store"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	listenAddr := getenv("LISTEN_ADDR", ":8000")
	redisAddr := getenv("REDIS_ADDR", "localhost:6379")
	queueKey := getenv("ACTION_QUEUE_KEY", "neuroshield:actions")

	execCfg := automation.DefaultConfig()
	if limitStr := os.Getenv("EXECUTOR_CONCURRENCY"); limitStr != "" {
		var limit int
		fmt.Sscanf(limitStr, "%d", &limit)
		if limit > 0 {
			execCfg.MaxConcurrency = limit
		}
	}

	pollInterval := 5 * time.Second
	if secStr := os.Getenv("BRIDGE_POLL_SECONDS"); secStr != "" {
		var sec int
		fmt.Sscanf(secStr, "%d", &sec)
		if sec > 0 {
			pollInterval = time.Duration(sec) * time.Second
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Action archive: postgres when configured, in-memory otherwise.
	var st store.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		ps, err := store.NewPostgresStore(ctx, dbURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		st = ps
		log.Printf("connected to postgres action archive")
	} else {
		st = store.NewMemoryStore()
		log.Printf("DATABASE_URL not set, using in-memory action archive")
	}
	defer st.Close()

	broadcaster := broadcast.NewBroadcaster(0, 0)
	broadcaster.Start(ctx)
	defer broadcaster.Stop()

	executor := automation.NewExecutor(execCfg, broadcaster, st)
	executor.Start(ctx)
	defer executor.Stop()

	wsHub := hub.New(0)
	fwdSub := broadcaster.SubscribeGlobal(hub.NewEventForwarder(wsHub))
	defer broadcaster.Unsubscribe(fwdSub)

	// Durable queue bridge: requires redis; the rest of the system runs
	// without it, reachable only by direct submission.
	var queueBridge *bridge.Bridge
	rq, err := bridge.NewRedisQueue(redisAddr, "", 0, queueKey)
	if err != nil {
		log.Printf("redis unavailable at %s, durable queue bridge disabled: %v", redisAddr, err)
	} else {
		defer rq.Close()
		queueBridge = bridge.New(rq, executor, pollInterval)
		queueBridge.Start(ctx)
		defer queueBridge.Stop()
		log.Printf("durable queue bridge polling %s key %q", redisAddr, queueKey)
	}

	api := NewAPI(executor, broadcaster, queueBridge, wsHub)
	srv := &http.Server{
		Addr:    listenAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("neuroshield listening on %s", listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
