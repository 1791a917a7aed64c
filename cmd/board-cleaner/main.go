package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/presence"
	"github.com/DigitalEpidemic/retro-tool-sub001/realtime"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("board cleaner starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	boardsTableName := os.Getenv("BOARDS_TABLE")
	cardsTableName := os.Getenv("CARDS_TABLE")
	usersTableName := os.Getenv("USERS_TABLE")
	eventsQueueName := os.Getenv("BOARD_EVENTS_QUEUE")
	if connStr == "" || boardsTableName == "" || cardsTableName == "" || usersTableName == "" || eventsQueueName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, boardsTableName, cardsTableName, usersTableName, eventsQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(realtime.ParseOptions(redisConn))
	rt := realtime.NewStore(rc)

	inactivity := parseDurationEnv("CLEANUP_INACTIVITY")
	liveness := parseDurationEnv("CLEANUP_LIVENESS")
	cleaner := presence.NewCleaner(store, rt, inactivity, liveness)

	ctx := context.Background()

	// With no interval configured the sweep runs once and exits, leaving
	// scheduling to whatever invoked the binary.
	interval := parseDurationEnv("CLEANUP_INTERVAL")
	if interval <= 0 {
		if err := cleaner.CleanupInactiveBoards(ctx); err != nil {
			log.Fatalf("sweep: %v", err)
		}
		log.Info("sweep complete")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := cleaner.CleanupInactiveBoards(ctx); err != nil {
			log.WithError(err).Error("sweep failed")
		}
		<-ticker.C
	}
}

func parseDurationEnv(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}
