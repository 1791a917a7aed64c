package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
)

type fakeCleanerStore struct {
	boards map[string]domain.Board

	listErr  error
	cascades []string
	deletes  []string
	updates  []storage.BoardUpdate
	events   []domain.Event
}

func (f *fakeCleanerStore) ListBoards(ctx context.Context) ([]domain.Board, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Board, 0, len(f.boards))
	for _, b := range f.boards {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeCleanerStore) UpdateBoard(ctx context.Context, upd storage.BoardUpdate) error {
	b, ok := f.boards[upd.RowKey]
	if !ok {
		return errors.New("board missing")
	}
	if upd.LastActive != nil {
		b.LastActive = *upd.LastActive
	}
	f.boards[upd.RowKey] = b
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeCleanerStore) DeleteBoard(ctx context.Context, boardID string) error {
	delete(f.boards, boardID)
	f.deletes = append(f.deletes, boardID)
	return nil
}

func (f *fakeCleanerStore) DeleteBoardCards(ctx context.Context, boardID string) error {
	f.cascades = append(f.cascades, boardID)
	return nil
}

func (f *fakeCleanerStore) EnqueueEvent(ctx context.Context, ev domain.Event) error {
	f.events = append(f.events, ev)
	return nil
}

type fakeCleanerRealtime struct {
	participants map[string][]domain.OnlineUser

	presenceErr error
	cleared     []string
	dropped     []string
}

func (f *fakeCleanerRealtime) Participants(ctx context.Context, boardID string) ([]domain.OnlineUser, error) {
	if f.presenceErr != nil {
		return nil, f.presenceErr
	}
	return f.participants[boardID], nil
}

func (f *fakeCleanerRealtime) ClearParticipants(ctx context.Context, boardID string) error {
	delete(f.participants, boardID)
	f.cleared = append(f.cleared, boardID)
	return nil
}

func (f *fakeCleanerRealtime) DropSnapshot(ctx context.Context, boardID string) {
	f.dropped = append(f.dropped, boardID)
}

func sweepAt(st *fakeCleanerStore, rt *fakeCleanerRealtime, now time.Time) *Cleaner {
	c := NewCleaner(st, rt, 0, 0)
	c.now = func() time.Time { return now }
	return c
}

func TestSweepReclaimsStaleEmptyBoard(t *testing.T) {
	now := time.UnixMilli(100_000_000)
	st := &fakeCleanerStore{boards: map[string]domain.Board{
		"B1": {ID: "B1", LastActive: now.Add(-20 * time.Minute).UnixMilli()},
	}}
	rt := &fakeCleanerRealtime{participants: map[string][]domain.OnlineUser{}}

	if err := sweepAt(st, rt, now).CleanupInactiveBoards(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(st.cascades) != 1 || st.cascades[0] != "B1" {
		t.Fatalf("cascades = %v", st.cascades)
	}
	if len(st.deletes) != 1 || st.deletes[0] != "B1" {
		t.Fatalf("deletes = %v", st.deletes)
	}
	if len(rt.cleared) != 1 || len(rt.dropped) != 1 {
		t.Fatalf("presence subtree not reclaimed: cleared=%v dropped=%v", rt.cleared, rt.dropped)
	}
	if len(st.events) != 1 {
		t.Fatalf("events = %d, want 1", len(st.events))
	}
	ev := st.events[0]
	if ev.Type != domain.BoardDeleted || ev.BoardID != "B1" || ev.EntityType != domain.EntityBoard {
		t.Fatalf("event = %+v", ev)
	}
	if ev.ID == "" || ev.Timestamp != now.UnixMilli() {
		t.Fatalf("event id/timestamp = %q/%d", ev.ID, ev.Timestamp)
	}
}

func TestSweepRefreshesBoardWithLiveParticipants(t *testing.T) {
	now := time.UnixMilli(100_000_000)
	st := &fakeCleanerStore{boards: map[string]domain.Board{
		"B1": {ID: "B1", LastActive: now.Add(-30 * time.Minute).UnixMilli()},
	}}
	rt := &fakeCleanerRealtime{participants: map[string][]domain.OnlineUser{
		"B1": {{ID: "u1", LastOnline: now.Add(-time.Minute).UnixMilli()}},
	}}

	if err := sweepAt(st, rt, now).CleanupInactiveBoards(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(st.deletes) != 0 {
		t.Fatalf("live board deleted")
	}
	if st.boards["B1"].LastActive != now.UnixMilli() {
		t.Fatalf("lastActive = %d, want refreshed to %d", st.boards["B1"].LastActive, now.UnixMilli())
	}
}

func TestSweepIgnoresStalePresenceRecords(t *testing.T) {
	now := time.UnixMilli(100_000_000)
	st := &fakeCleanerStore{boards: map[string]domain.Board{
		"B1": {ID: "B1", LastActive: now.Add(-20 * time.Minute).UnixMilli()},
	}}
	// A record past the liveness window does not count as a live participant.
	rt := &fakeCleanerRealtime{participants: map[string][]domain.OnlineUser{
		"B1": {{ID: "u1", LastOnline: now.Add(-10 * time.Minute).UnixMilli()}},
	}}

	if err := sweepAt(st, rt, now).CleanupInactiveBoards(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(st.deletes) != 1 {
		t.Fatalf("board with only stale records not reclaimed")
	}
}

func TestSweepKeepsRecentEmptyBoard(t *testing.T) {
	now := time.UnixMilli(100_000_000)
	st := &fakeCleanerStore{boards: map[string]domain.Board{
		"B1": {ID: "B1", LastActive: now.Add(-5 * time.Minute).UnixMilli()},
	}}
	rt := &fakeCleanerRealtime{participants: map[string][]domain.OnlineUser{}}

	if err := sweepAt(st, rt, now).CleanupInactiveBoards(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(st.deletes) != 0 || len(st.updates) != 0 {
		t.Fatalf("recent empty board touched: deletes=%v updates=%d", st.deletes, len(st.updates))
	}
}

func TestSweepContinuesPastPerBoardFailures(t *testing.T) {
	now := time.UnixMilli(100_000_000)
	st := &fakeCleanerStore{boards: map[string]domain.Board{
		"B1": {ID: "B1", LastActive: now.Add(-20 * time.Minute).UnixMilli()},
		"B2": {ID: "B2", LastActive: now.Add(-20 * time.Minute).UnixMilli()},
	}}
	rt := &fakeCleanerRealtime{participants: map[string][]domain.OnlineUser{}}

	// Sweep with a presence read error touches nothing.
	rt.presenceErr = errors.New("redis down")
	if err := sweepAt(st, rt, now).CleanupInactiveBoards(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(st.deletes) != 0 {
		t.Fatalf("boards deleted despite presence failure")
	}

	rt.presenceErr = nil
	if err := sweepAt(st, rt, now).CleanupInactiveBoards(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(st.deletes) != 2 {
		t.Fatalf("deletes = %v, want both boards", st.deletes)
	}
}

func TestSweepListFailure(t *testing.T) {
	st := &fakeCleanerStore{listErr: errors.New("table down")}
	rt := &fakeCleanerRealtime{}
	err := sweepAt(st, rt, time.Now()).CleanupInactiveBoards(context.Background())
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
