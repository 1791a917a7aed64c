package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
	"github.com/DigitalEpidemic/retro-tool-sub001/realtime"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("board notifier starting")

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

	snapshotTTL := 12 * time.Hour
	if v := os.Getenv("SNAPSHOT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid SNAPSHOT_TTL: %v", err)
		}
		snapshotTTL = d
	}
	updater := newSnapshotUpdater(store, rt, snapshotTTL)

	ctx := context.Background()
	for {
		msg, err := store.DequeueEvent(ctx)
		if err != nil {
			log.WithError(err).Error("receive failed")
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			time.Sleep(time.Second)
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal([]byte(*msg.MessageText), &ev); err != nil {
			log.WithError(err).Error("dropping malformed event")
		} else if err := processEvent(ctx, updater, rt, ev, *msg.MessageText); err != nil {
			log.WithError(err).WithField("board", ev.BoardID).Error("event processing failed")
		}
		if err := store.DeleteEvent(ctx, *msg.MessageID, *msg.PopReceipt); err != nil {
			log.WithError(err).Error("failed to delete processed message")
		}
	}
}
