package main

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

type snapshotStore interface {
	GetBoard(ctx context.Context, boardID string) (*domain.Board, error)
	ListCards(ctx context.Context, boardID string) ([]domain.Card, error)
}

type snapshotCache interface {
	StoreSnapshot(ctx context.Context, boardID string, data []byte, ttl time.Duration) error
	DropSnapshot(ctx context.Context, boardID string)
}

// snapshotUpdater keeps the per-board redis snapshot in step with the
// document store so stream connections can serve reads without hitting the
// tables on every change.
type snapshotUpdater struct {
	store snapshotStore
	cache snapshotCache
	ttl   time.Duration
	now   func() time.Time
}

type cachedSnapshot struct {
	Version  int           `json:"version"`
	CachedAt time.Time     `json:"cachedAt"`
	Board    domain.Board  `json:"board"`
	Cards    []domain.Card `json:"cards"`
}

func newSnapshotUpdater(store snapshotStore, cache snapshotCache, ttl time.Duration) *snapshotUpdater {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &snapshotUpdater{store: store, cache: cache, ttl: ttl, now: time.Now}
}

func (u *snapshotUpdater) RefreshBoard(ctx context.Context, boardID string) {
	if u == nil || u.store == nil || u.cache == nil {
		return
	}
	b, err := u.store.GetBoard(ctx, boardID)
	if err != nil {
		log.WithError(err).WithField("board", boardID).Error("failed to load board for snapshot")
		return
	}
	if b == nil {
		u.cache.DropSnapshot(ctx, boardID)
		return
	}
	cards, err := u.store.ListCards(ctx, boardID)
	if err != nil {
		log.WithError(err).WithField("board", boardID).Error("failed to list cards for snapshot")
		return
	}
	domain.SortCardsByPosition(cards)
	payload := cachedSnapshot{
		Version:  1,
		CachedAt: u.now().UTC(),
		Board:    *b,
		Cards:    cards,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("board", boardID).Error("failed to marshal snapshot payload")
		return
	}
	if err := u.cache.StoreSnapshot(ctx, boardID, data, u.ttl); err != nil {
		log.WithError(err).WithField("board", boardID).Error("failed to store snapshot entry")
	}
}

func (u *snapshotUpdater) DropBoard(ctx context.Context, boardID string) {
	if u == nil || u.cache == nil {
		return
	}
	u.cache.DropSnapshot(ctx, boardID)
}
