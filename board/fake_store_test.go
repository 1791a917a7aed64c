package board

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
)

type fakeStore struct {
	boards map[string]domain.Board
	cards  map[string]domain.Card

	events         []domain.Event
	appliedBatches [][]storage.CardUpdate
	updateCount    int
	deletedBoards  []string
	cascades       []string

	failList bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		boards: map[string]domain.Board{},
		cards:  map[string]domain.Card{},
	}
}

func (f *fakeStore) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	b, ok := f.boards[boardID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) UpsertBoard(ctx context.Context, b domain.Board) error {
	f.boards[b.ID] = b
	return nil
}

func (f *fakeStore) UpdateBoard(ctx context.Context, upd storage.BoardUpdate) error {
	b, ok := f.boards[upd.RowKey]
	if !ok {
		return errors.New("board missing")
	}
	if upd.Name != nil {
		b.Name = *upd.Name
	}
	if upd.IsActive != nil {
		b.IsActive = *upd.IsActive
	}
	if upd.LastActive != nil {
		b.LastActive = *upd.LastActive
	}
	if upd.Columns != nil {
		b.Columns = decodeColumns(*upd.Columns)
	}
	if upd.ActionPoints != nil {
		b.ActionPoints = decodeActionPoints(*upd.ActionPoints)
	}
	if upd.TimerRunning != nil {
		b.Timer.Running = *upd.TimerRunning
	}
	if upd.TimerEndsAt != nil {
		b.Timer.EndsAt = *upd.TimerEndsAt
	}
	if upd.TimerSeconds != nil {
		b.Timer.Seconds = *upd.TimerSeconds
	}
	f.boards[upd.RowKey] = b
	f.updateCount++
	return nil
}

func (f *fakeStore) DeleteBoard(ctx context.Context, boardID string) error {
	delete(f.boards, boardID)
	f.deletedBoards = append(f.deletedBoards, boardID)
	return nil
}

func (f *fakeStore) ListCards(ctx context.Context, boardID string) ([]domain.Card, error) {
	if f.failList {
		return nil, errors.New("list failed")
	}
	cards := []domain.Card{}
	for _, c := range f.cards {
		if c.BoardID == boardID {
			cards = append(cards, c)
		}
	}
	return cards, nil
}

func (f *fakeStore) GetCard(ctx context.Context, boardID, cardID string) (*domain.Card, error) {
	c, ok := f.cards[cardID]
	if !ok || c.BoardID != boardID {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) UpsertCard(ctx context.Context, c domain.Card) error {
	f.cards[c.ID] = c
	return nil
}

func (f *fakeStore) UpdateCard(ctx context.Context, upd storage.CardUpdate) error {
	c, ok := f.cards[upd.RowKey]
	if !ok {
		return errors.New("card missing")
	}
	applyCardUpdate(&c, upd)
	f.cards[upd.RowKey] = c
	return nil
}

func (f *fakeStore) DeleteCard(ctx context.Context, boardID, cardID string) error {
	delete(f.cards, cardID)
	return nil
}

func (f *fakeStore) ApplyCardUpdates(ctx context.Context, updates []storage.CardUpdate) error {
	for _, upd := range updates {
		c, ok := f.cards[upd.RowKey]
		if !ok {
			return errors.New("card missing in batch")
		}
		applyCardUpdate(&c, upd)
		f.cards[upd.RowKey] = c
	}
	f.appliedBatches = append(f.appliedBatches, updates)
	return nil
}

func (f *fakeStore) DeleteBoardCards(ctx context.Context, boardID string) error {
	for id, c := range f.cards {
		if c.BoardID == boardID {
			delete(f.cards, id)
		}
	}
	f.cascades = append(f.cascades, boardID)
	return nil
}

func (f *fakeStore) EnqueueEvent(ctx context.Context, ev domain.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func applyCardUpdate(c *domain.Card, upd storage.CardUpdate) {
	if upd.ColumnID != nil {
		c.ColumnID = *upd.ColumnID
	}
	if upd.Content != nil {
		c.Content = *upd.Content
	}
	if upd.Votes != nil {
		c.Votes = *upd.Votes
	}
	if upd.Position != nil {
		c.Position = *upd.Position
	}
	if upd.Actionable != nil {
		c.Actionable = *upd.Actionable
	}
	if upd.Color != nil {
		c.Color = *upd.Color
	}
}

func decodeColumns(encoded string) map[string]domain.Column {
	cols := map[string]domain.Column{}
	_ = json.Unmarshal([]byte(encoded), &cols)
	return cols
}

func decodeActionPoints(encoded string) []domain.ActionPoint {
	aps := []domain.ActionPoint{}
	_ = json.Unmarshal([]byte(encoded), &aps)
	return aps
}

type fakeRealtime struct {
	cleared  []string
	dropped  []string
	clearErr error
}

func (f *fakeRealtime) ClearParticipants(ctx context.Context, boardID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, boardID)
	return nil
}

func (f *fakeRealtime) DropSnapshot(ctx context.Context, boardID string) {
	f.dropped = append(f.dropped, boardID)
}
