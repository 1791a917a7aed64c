package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

type cacheRefresher interface {
	RefreshBoard(ctx context.Context, boardID string)
	DropBoard(ctx context.Context, boardID string)
}

type publisher interface {
	PublishEvent(ctx context.Context, boardID, payload string) error
}

func processEvent(ctx context.Context, cache cacheRefresher, pub publisher, ev domain.Event, payload string) error {
	if cache != nil {
		if ev.Type == domain.BoardDeleted {
			cache.DropBoard(ctx, ev.BoardID)
		} else {
			cache.RefreshBoard(ctx, ev.BoardID)
		}
	}
	if err := pub.PublishEvent(ctx, ev.BoardID, payload); err != nil {
		log.Errorf("Unable to publish %s update for board %s", ev.Type, ev.BoardID)
	}
	return nil
}
