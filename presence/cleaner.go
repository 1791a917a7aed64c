package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
)

const (
	// DefaultInactivity is how long an empty board survives past its last
	// recorded activity.
	DefaultInactivity = 15 * time.Minute
	// DefaultLiveness is the heartbeat window; presence records older than
	// this do not count as live.
	DefaultLiveness = 2 * time.Minute
)

// CleanerStorage defines the document-store operations the sweep needs.
type CleanerStorage interface {
	ListBoards(ctx context.Context) ([]domain.Board, error)
	UpdateBoard(ctx context.Context, upd storage.BoardUpdate) error
	DeleteBoard(ctx context.Context, boardID string) error
	DeleteBoardCards(ctx context.Context, boardID string) error
	EnqueueEvent(ctx context.Context, ev domain.Event) error
}

// CleanerRealtime defines the realtime-store operations the sweep needs.
type CleanerRealtime interface {
	Participants(ctx context.Context, boardID string) ([]domain.OnlineUser, error)
	ClearParticipants(ctx context.Context, boardID string) error
	DropSnapshot(ctx context.Context, boardID string)
}

// Cleaner reclaims boards that nobody is connected to anymore. It is a sweep,
// not a push notification: staleness is only detected when the sweep runs.
type Cleaner struct {
	st         CleanerStorage
	rt         CleanerRealtime
	inactivity time.Duration
	liveness   time.Duration
	now        func() time.Time
}

// NewCleaner creates a cleanup sweep. Non-positive durations fall back to the
// defaults.
func NewCleaner(st CleanerStorage, rt CleanerRealtime, inactivity, liveness time.Duration) *Cleaner {
	if inactivity <= 0 {
		inactivity = DefaultInactivity
	}
	if liveness <= 0 {
		liveness = DefaultLiveness
	}
	return &Cleaner{st: st, rt: rt, inactivity: inactivity, liveness: liveness, now: time.Now}
}

// CleanupInactiveBoards walks every board once. Boards with live participants
// get their activity stamp refreshed; boards that have been empty past the
// inactivity threshold are deleted with their cards and presence subtree.
// Per-board failures are logged and the sweep moves on.
func (c *Cleaner) CleanupInactiveBoards(ctx context.Context) error {
	boards, err := c.st.ListBoards(ctx)
	if err != nil {
		return unavailable(err)
	}
	now := c.now()
	nowMillis := now.UnixMilli()
	liveCutoff := now.Add(-c.liveness).UnixMilli()
	staleCutoff := now.Add(-c.inactivity).UnixMilli()

	for _, b := range boards {
		participants, err := c.rt.Participants(ctx, b.ID)
		if err != nil {
			log.WithError(err).WithField("board", b.ID).Error("sweep: presence read failed")
			continue
		}
		live := 0
		for _, p := range participants {
			if p.LastOnline >= liveCutoff {
				live++
			}
		}
		if live > 0 {
			if err := c.st.UpdateBoard(ctx, storage.NewLastActiveUpdate(b.ID, nowMillis)); err != nil {
				log.WithError(err).WithField("board", b.ID).Error("sweep: activity refresh failed")
			}
			continue
		}
		if b.LastActive > staleCutoff {
			continue
		}
		c.reclaim(ctx, b)
	}
	return nil
}

func (c *Cleaner) reclaim(ctx context.Context, b domain.Board) {
	log.WithFields(log.Fields{"board": b.ID, "lastActive": b.LastActive}).Info("reclaiming inactive board")
	if err := c.st.DeleteBoardCards(ctx, b.ID); err != nil {
		log.WithError(err).WithField("board", b.ID).Error("sweep: card cascade failed")
		return
	}
	if err := c.st.DeleteBoard(ctx, b.ID); err != nil {
		log.WithError(err).WithField("board", b.ID).Error("sweep: board delete failed")
		return
	}
	if err := c.rt.ClearParticipants(ctx, b.ID); err != nil {
		log.WithError(err).WithField("board", b.ID).Error("sweep: presence clear failed")
	}
	c.rt.DropSnapshot(ctx, b.ID)
	ev := domain.Event{
		ID:         uuid.NewString(),
		Type:       domain.BoardDeleted,
		EntityType: domain.EntityBoard,
		BoardID:    b.ID,
		EntityID:   b.ID,
		Timestamp:  c.now().UnixMilli(),
	}
	if err := c.st.EnqueueEvent(ctx, ev); err != nil {
		log.WithError(err).WithField("board", b.ID).Error("sweep: event enqueue failed")
	}
}
