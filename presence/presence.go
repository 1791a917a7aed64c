// Package presence tracks which users are connected to which board and
// reclaims boards nobody is using anymore.
package presence

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
	"github.com/DigitalEpidemic/retro-tool-sub001/realtime"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
)

// Storage defines the document-store operations the presence layer needs.
type Storage interface {
	GetBoard(ctx context.Context, boardID string) (*domain.Board, error)
	UpdateBoard(ctx context.Context, upd storage.BoardUpdate) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpdateUser(ctx context.Context, upd storage.UserUpdate) error
}

// Realtime defines the realtime-store operations the presence layer needs.
type Realtime interface {
	SetParticipant(ctx context.Context, u domain.OnlineUser) error
	RemoveParticipant(ctx context.Context, boardID, userID string) error
	TouchParticipant(ctx context.Context, boardID, userID string, ts int64) error
	Participants(ctx context.Context, boardID string) ([]domain.OnlineUser, error)
	SetStatus(ctx context.Context, userID string, online bool) error
	SubscribeParticipants(ctx context.Context, boardID string, cb func([]domain.OnlineUser)) (func(), error)
}

// Manager moves user-board pairs through ABSENT -> ONLINE -> OFFLINE/ABSENT.
type Manager struct {
	st    Storage
	rt    Realtime
	hooks *realtime.DisconnectRegistry
	now   func() time.Time
}

// NewManager creates a presence manager.
func NewManager(st Storage, rt Realtime, hooks *realtime.DisconnectRegistry) *Manager {
	return &Manager{st: st, rt: rt, hooks: hooks, now: time.Now}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}

// Join brings a user online on a board: it writes the presence record,
// registers the disconnect actions, stamps the board's activity time and
// points the user's profile at the board. A failed profile update is logged
// and ignored; presence is established regardless.
func (m *Manager) Join(ctx context.Context, boardID, userID, name string) (domain.OnlineUser, error) {
	b, err := m.st.GetBoard(ctx, boardID)
	if err != nil {
		return domain.OnlineUser{}, unavailable(err)
	}
	if b == nil {
		return domain.OnlineUser{}, fmt.Errorf("board %s: %w", boardID, domain.ErrNotFound)
	}

	color := ""
	profile, err := m.st.GetUser(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user", userID).Warn("profile read failed during join")
	} else if profile != nil {
		color = profile.Color
		if name == "" {
			name = profile.Name
		}
	}
	if color == "" {
		color = domain.ColorForUser(userID)
	}

	ts := m.now().UnixMilli()
	u := domain.OnlineUser{ID: userID, Name: name, Color: color, BoardID: boardID, LastOnline: ts}
	if err := m.rt.SetStatus(ctx, userID, true); err != nil {
		return domain.OnlineUser{}, unavailable(err)
	}
	if err := m.rt.SetParticipant(ctx, u); err != nil {
		return domain.OnlineUser{}, unavailable(err)
	}

	m.hooks.Register(boardID, userID,
		func(ctx context.Context) error { return m.rt.SetStatus(ctx, userID, false) },
		func(ctx context.Context) error { return m.rt.RemoveParticipant(ctx, boardID, userID) },
	)

	if err := m.st.UpdateBoard(ctx, storage.NewLastActiveUpdate(boardID, ts)); err != nil {
		return domain.OnlineUser{}, unavailable(err)
	}
	boardPtr := boardID
	if err := m.st.UpdateUser(ctx, storage.UserUpdate{
		Entity:  storage.Entity{PartitionKey: userID, RowKey: userID},
		BoardID: &boardPtr,
	}); err != nil {
		log.WithError(err).WithFields(log.Fields{"user": userID, "board": boardID}).Error("profile board pointer update failed; join continues")
	}
	return u, nil
}

// Leave takes a user offline explicitly: it cancels the pending disconnect
// actions so they never double-fire, then performs the same cleanup inline
// and clears the profile's board pointer.
func (m *Manager) Leave(ctx context.Context, boardID, userID string) error {
	m.hooks.Cancel(boardID, userID)
	if err := m.rt.SetStatus(ctx, userID, false); err != nil {
		return unavailable(err)
	}
	if err := m.rt.RemoveParticipant(ctx, boardID, userID); err != nil {
		return unavailable(err)
	}
	if err := m.st.UpdateBoard(ctx, storage.NewLastActiveUpdate(boardID, m.now().UnixMilli())); err != nil {
		return unavailable(err)
	}
	cleared := ""
	if err := m.st.UpdateUser(ctx, storage.UserUpdate{
		Entity:  storage.Entity{PartitionKey: userID, RowKey: userID},
		BoardID: &cleared,
	}); err != nil {
		log.WithError(err).WithFields(log.Fields{"user": userID, "board": boardID}).Error("profile board pointer clear failed")
	}
	return nil
}

// Disconnect fires the pre-registered disconnect actions for the pair. The
// stream handler calls this when a connection's context ends; if the user
// already left explicitly the registry is empty and nothing runs.
func (m *Manager) Disconnect(ctx context.Context, boardID, userID string) {
	m.hooks.Fire(ctx, boardID, userID)
}

// Heartbeat refreshes the lastOnline stamp on the user's presence record.
func (m *Manager) Heartbeat(ctx context.Context, boardID, userID string) error {
	if err := m.rt.TouchParticipant(ctx, boardID, userID, m.now().UnixMilli()); err != nil {
		return unavailable(err)
	}
	return nil
}

// SubscribeToParticipants delivers the sorted participant list to cb on every
// presence change. The returned cleanup detaches the listener.
func (m *Manager) SubscribeToParticipants(ctx context.Context, boardID string, cb func([]domain.OnlineUser)) (func(), error) {
	cleanup, err := m.rt.SubscribeParticipants(ctx, boardID, cb)
	if err != nil {
		return nil, unavailable(err)
	}
	return cleanup, nil
}
