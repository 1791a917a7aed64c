// Package board implements the board CRUD service and the position manager
// keeping cards ordered within their columns.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
)

// Storage defines the document-store operations the board service needs.
type Storage interface {
	GetBoard(ctx context.Context, boardID string) (*domain.Board, error)
	UpsertBoard(ctx context.Context, b domain.Board) error
	UpdateBoard(ctx context.Context, upd storage.BoardUpdate) error
	DeleteBoard(ctx context.Context, boardID string) error
	ListCards(ctx context.Context, boardID string) ([]domain.Card, error)
	GetCard(ctx context.Context, boardID, cardID string) (*domain.Card, error)
	UpsertCard(ctx context.Context, c domain.Card) error
	UpdateCard(ctx context.Context, upd storage.CardUpdate) error
	DeleteCard(ctx context.Context, boardID, cardID string) error
	ApplyCardUpdates(ctx context.Context, updates []storage.CardUpdate) error
	DeleteBoardCards(ctx context.Context, boardID string) error
	EnqueueEvent(ctx context.Context, ev domain.Event) error
}

// Realtime defines the realtime-store operations used on board deletion.
type Realtime interface {
	ClearParticipants(ctx context.Context, boardID string) error
	DropSnapshot(ctx context.Context, boardID string)
}

// Service implements board, column, card, action point and timer operations.
type Service struct {
	st  Storage
	rt  Realtime
	now func() time.Time
}

// NewService creates a board service.
func NewService(st Storage, rt Realtime) *Service {
	return &Service{st: st, rt: rt, now: time.Now}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}

func (s *Service) nowMillis() int64 {
	return s.now().UnixMilli()
}

// emit enqueues a change event for fan-out. A fan-out failure never unwinds
// the committed write; it is logged and dropped.
func (s *Service) emit(ctx context.Context, boardID, entityID, entityType, evType, userID string, data any) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			log.WithError(err).WithField("board", boardID).Error("failed to marshal event data")
			return
		}
	}
	ev := domain.Event{
		ID:         uuid.NewString(),
		BoardID:    boardID,
		EntityID:   entityID,
		EntityType: entityType,
		Type:       evType,
		Data:       raw,
		Timestamp:  s.nowMillis(),
		UserID:     userID,
	}
	if err := s.st.EnqueueEvent(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{"board": boardID, "type": evType}).Error("failed to enqueue board event")
	}
}

func (s *Service) getBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	b, err := s.st.GetBoard(ctx, boardID)
	if err != nil {
		return nil, unavailable(err)
	}
	if b == nil {
		return nil, fmt.Errorf("board %s: %w", boardID, domain.ErrNotFound)
	}
	return b, nil
}

// CreateBoard creates a board with the three default retro columns. The
// creator becomes the facilitator.
func (s *Service) CreateBoard(ctx context.Context, name, facilitatorID string) (domain.Board, error) {
	now := s.nowMillis()
	cols := map[string]domain.Column{}
	for i, title := range []string{"Went Well", "To Improve", "Action Items"} {
		id := uuid.NewString()
		cols[id] = domain.Column{ID: id, Title: title, Order: i}
	}
	b := domain.Board{
		ID:            uuid.NewString(),
		Name:          name,
		CreatedAt:     now,
		IsActive:      true,
		FacilitatorID: facilitatorID,
		LastActive:    now,
		Columns:       cols,
	}
	if err := s.st.UpsertBoard(ctx, b); err != nil {
		return domain.Board{}, unavailable(err)
	}
	s.emit(ctx, b.ID, b.ID, domain.EntityBoard, domain.BoardCreated, facilitatorID, nil)
	return b, nil
}

// Board returns a board document with its cards ordered by position.
func (s *Service) Board(ctx context.Context, boardID string) (domain.Board, []domain.Card, error) {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return domain.Board{}, nil, err
	}
	cards, err := s.st.ListCards(ctx, boardID)
	if err != nil {
		return domain.Board{}, nil, unavailable(err)
	}
	domain.SortCardsByPosition(cards)
	return *b, cards, nil
}

// RenameBoard changes a board's display name.
func (s *Service) RenameBoard(ctx context.Context, boardID, userID, name string) error {
	if _, err := s.getBoard(ctx, boardID); err != nil {
		return err
	}
	upd := storage.BoardUpdate{
		Entity: storage.Entity{PartitionKey: boardID, RowKey: boardID},
		Name:   &name,
	}
	if err := s.st.UpdateBoard(ctx, upd); err != nil {
		return unavailable(err)
	}
	s.emit(ctx, boardID, boardID, domain.EntityBoard, domain.BoardRenamed, userID, nil)
	return nil
}

// DeleteBoard removes a board, its cards and its presence subtree. Only the
// facilitator may delete; everyone else gets ErrUnauthorized with nothing
// touched.
func (s *Service) DeleteBoard(ctx context.Context, boardID, userID string) error {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if b.FacilitatorID != userID {
		return fmt.Errorf("user %s is not the facilitator of board %s: %w", userID, boardID, domain.ErrUnauthorized)
	}
	if err := s.st.DeleteBoardCards(ctx, boardID); err != nil {
		return unavailable(err)
	}
	if err := s.st.DeleteBoard(ctx, boardID); err != nil {
		return unavailable(err)
	}
	if s.rt != nil {
		if err := s.rt.ClearParticipants(ctx, boardID); err != nil {
			log.WithError(err).WithField("board", boardID).Error("failed to clear presence subtree")
		}
		s.rt.DropSnapshot(ctx, boardID)
	}
	s.emit(ctx, boardID, boardID, domain.EntityBoard, domain.BoardDeleted, userID, nil)
	return nil
}

// AddColumn appends a column after the existing ones.
func (s *Service) AddColumn(ctx context.Context, boardID, userID, title string) (domain.Column, error) {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return domain.Column{}, err
	}
	order := 0
	for _, c := range b.Columns {
		if c.Order >= order {
			order = c.Order + 1
		}
	}
	col := domain.Column{ID: uuid.NewString(), Title: title, Order: order}
	b.Columns[col.ID] = col
	if err := s.saveColumns(ctx, boardID, b.Columns); err != nil {
		return domain.Column{}, err
	}
	s.emit(ctx, boardID, col.ID, domain.EntityBoard, domain.ColumnUpdated, userID, nil)
	return col, nil
}

// UpdateColumn renames a column or toggles its display-only vote sort. The
// sort flag never rewrites card positions.
func (s *Service) UpdateColumn(ctx context.Context, boardID, userID, columnID string, title *string, sortByVotes *bool) error {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return err
	}
	col, ok := b.Columns[columnID]
	if !ok {
		return fmt.Errorf("column %s: %w", columnID, domain.ErrNotFound)
	}
	if title != nil {
		col.Title = *title
	}
	if sortByVotes != nil {
		col.SortByVotes = *sortByVotes
	}
	b.Columns[columnID] = col
	if err := s.saveColumns(ctx, boardID, b.Columns); err != nil {
		return err
	}
	s.emit(ctx, boardID, columnID, domain.EntityBoard, domain.ColumnUpdated, userID, nil)
	return nil
}

func (s *Service) saveColumns(ctx context.Context, boardID string, cols map[string]domain.Column) error {
	data, err := json.Marshal(cols)
	if err != nil {
		return err
	}
	encoded := string(data)
	upd := storage.BoardUpdate{
		Entity:  storage.Entity{PartitionKey: boardID, RowKey: boardID},
		Columns: &encoded,
	}
	if err := s.st.UpdateBoard(ctx, upd); err != nil {
		return unavailable(err)
	}
	return nil
}

// AddCard creates a card at the tail of the given column.
func (s *Service) AddCard(ctx context.Context, boardID, columnID, content string, author domain.User) (domain.Card, error) {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return domain.Card{}, err
	}
	if _, ok := b.Columns[columnID]; !ok {
		return domain.Card{}, fmt.Errorf("column %s: %w", columnID, domain.ErrNotFound)
	}
	cards, err := s.st.ListCards(ctx, boardID)
	if err != nil {
		return domain.Card{}, unavailable(err)
	}
	pos := int64(0)
	for _, c := range domain.CardsInColumn(cards, columnID) {
		if c.Position >= pos {
			pos = c.Position + domain.PositionStep
		}
	}
	card := domain.Card{
		ID:         uuid.NewString(),
		BoardID:    boardID,
		ColumnID:   columnID,
		Content:    content,
		AuthorID:   author.ID,
		AuthorName: author.Name,
		CreatedAt:  s.nowMillis(),
		Position:   pos,
	}
	if err := s.st.UpsertCard(ctx, card); err != nil {
		return domain.Card{}, unavailable(err)
	}
	s.emit(ctx, boardID, card.ID, domain.EntityCard, domain.CardCreated, author.ID, nil)
	return card, nil
}

func (s *Service) getCard(ctx context.Context, boardID, cardID string) (*domain.Card, error) {
	c, err := s.st.GetCard(ctx, boardID, cardID)
	if err != nil {
		return nil, unavailable(err)
	}
	if c == nil {
		return nil, fmt.Errorf("card %s: %w", cardID, domain.ErrNotFound)
	}
	return c, nil
}

// UpdateCard edits a card's content, color or actionable flag.
func (s *Service) UpdateCard(ctx context.Context, boardID, cardID, userID string, content, color *string, actionable *bool) error {
	if _, err := s.getCard(ctx, boardID, cardID); err != nil {
		return err
	}
	upd := storage.CardUpdate{
		Entity:     storage.Entity{PartitionKey: boardID, RowKey: cardID},
		Content:    content,
		Color:      color,
		Actionable: actionable,
	}
	if content == nil && color == nil && actionable == nil {
		return nil
	}
	if err := s.st.UpdateCard(ctx, upd); err != nil {
		return unavailable(err)
	}
	s.emit(ctx, boardID, cardID, domain.EntityCard, domain.CardUpdated, userID, nil)
	return nil
}

// Vote adjusts a card's vote count. Counts never go below zero.
func (s *Service) Vote(ctx context.Context, boardID, cardID, userID string, delta int) (int, error) {
	c, err := s.getCard(ctx, boardID, cardID)
	if err != nil {
		return 0, err
	}
	votes := c.Votes + delta
	if votes < 0 {
		votes = 0
	}
	upd := storage.CardUpdate{
		Entity: storage.Entity{PartitionKey: boardID, RowKey: cardID},
		Votes:  &votes,
	}
	if err := s.st.UpdateCard(ctx, upd); err != nil {
		return 0, unavailable(err)
	}
	s.emit(ctx, boardID, cardID, domain.EntityCard, domain.CardVoted, userID, domain.CardVotedEventData{Delta: delta})
	return votes, nil
}

// DeleteCard removes a single card.
func (s *Service) DeleteCard(ctx context.Context, boardID, cardID, userID string) error {
	if _, err := s.getCard(ctx, boardID, cardID); err != nil {
		return err
	}
	if err := s.st.DeleteCard(ctx, boardID, cardID); err != nil {
		return unavailable(err)
	}
	s.emit(ctx, boardID, cardID, domain.EntityCard, domain.CardDeleted, userID, nil)
	return nil
}

// AddActionPoint appends a follow-up item to the board.
func (s *Service) AddActionPoint(ctx context.Context, boardID, userID, text, assignee string) (domain.ActionPoint, error) {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return domain.ActionPoint{}, err
	}
	ap := domain.ActionPoint{ID: uuid.NewString(), Text: text, Assignee: assignee}
	b.ActionPoints = append(b.ActionPoints, ap)
	if err := s.saveActionPoints(ctx, boardID, b.ActionPoints); err != nil {
		return domain.ActionPoint{}, err
	}
	s.emit(ctx, boardID, ap.ID, domain.EntityBoard, domain.ActionsEdited, userID, nil)
	return ap, nil
}

// UpdateActionPoint edits an action point's text, completion or assignee.
func (s *Service) UpdateActionPoint(ctx context.Context, boardID, userID, actionID string, text, assignee *string, completed *bool) error {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return err
	}
	idx := -1
	for i, ap := range b.ActionPoints {
		if ap.ID == actionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("action point %s: %w", actionID, domain.ErrNotFound)
	}
	if text != nil {
		b.ActionPoints[idx].Text = *text
	}
	if assignee != nil {
		b.ActionPoints[idx].Assignee = *assignee
	}
	if completed != nil {
		b.ActionPoints[idx].Completed = *completed
	}
	if err := s.saveActionPoints(ctx, boardID, b.ActionPoints); err != nil {
		return err
	}
	s.emit(ctx, boardID, actionID, domain.EntityBoard, domain.ActionsEdited, userID, nil)
	return nil
}

// DeleteActionPoint removes a follow-up item from the board.
func (s *Service) DeleteActionPoint(ctx context.Context, boardID, userID, actionID string) error {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return err
	}
	kept := b.ActionPoints[:0]
	found := false
	for _, ap := range b.ActionPoints {
		if ap.ID == actionID {
			found = true
			continue
		}
		kept = append(kept, ap)
	}
	if !found {
		return fmt.Errorf("action point %s: %w", actionID, domain.ErrNotFound)
	}
	if err := s.saveActionPoints(ctx, boardID, kept); err != nil {
		return err
	}
	s.emit(ctx, boardID, actionID, domain.EntityBoard, domain.ActionsEdited, userID, nil)
	return nil
}

func (s *Service) saveActionPoints(ctx context.Context, boardID string, aps []domain.ActionPoint) error {
	data, err := json.Marshal(aps)
	if err != nil {
		return err
	}
	encoded := string(data)
	upd := storage.BoardUpdate{
		Entity:       storage.Entity{PartitionKey: boardID, RowKey: boardID},
		ActionPoints: &encoded,
	}
	if err := s.st.UpdateBoard(ctx, upd); err != nil {
		return unavailable(err)
	}
	return nil
}

// StartTimer starts the shared countdown for the given number of seconds.
func (s *Service) StartTimer(ctx context.Context, boardID, userID string, seconds int64) error {
	if _, err := s.getBoard(ctx, boardID); err != nil {
		return err
	}
	running := true
	endsAt := s.nowMillis() + seconds*1000
	edm := storage.EdmInt64
	upd := storage.BoardUpdate{
		Entity:           storage.Entity{PartitionKey: boardID, RowKey: boardID},
		TimerRunning:     &running,
		TimerEndsAt:      &endsAt,
		TimerEndsAtType:  &edm,
		TimerSeconds:     &seconds,
		TimerSecondsType: &edm,
	}
	if err := s.st.UpdateBoard(ctx, upd); err != nil {
		return unavailable(err)
	}
	s.emit(ctx, boardID, boardID, domain.EntityBoard, domain.TimerUpdated, userID, nil)
	return nil
}

// ExtendTimer pushes a running countdown's end further out.
func (s *Service) ExtendTimer(ctx context.Context, boardID, userID string, seconds int64) error {
	b, err := s.getBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if !b.Timer.Running {
		return fmt.Errorf("timer on board %s is not running: %w", boardID, domain.ErrNotFound)
	}
	endsAt := b.Timer.EndsAt + seconds*1000
	total := b.Timer.Seconds + seconds
	edm := storage.EdmInt64
	upd := storage.BoardUpdate{
		Entity:           storage.Entity{PartitionKey: boardID, RowKey: boardID},
		TimerEndsAt:      &endsAt,
		TimerEndsAtType:  &edm,
		TimerSeconds:     &total,
		TimerSecondsType: &edm,
	}
	if err := s.st.UpdateBoard(ctx, upd); err != nil {
		return unavailable(err)
	}
	s.emit(ctx, boardID, boardID, domain.EntityBoard, domain.TimerUpdated, userID, nil)
	return nil
}

// StopTimer halts the shared countdown.
func (s *Service) StopTimer(ctx context.Context, boardID, userID string) error {
	if _, err := s.getBoard(ctx, boardID); err != nil {
		return err
	}
	running := false
	endsAt := int64(0)
	edm := storage.EdmInt64
	upd := storage.BoardUpdate{
		Entity:          storage.Entity{PartitionKey: boardID, RowKey: boardID},
		TimerRunning:    &running,
		TimerEndsAt:     &endsAt,
		TimerEndsAtType: &edm,
	}
	if err := s.st.UpdateBoard(ctx, upd); err != nil {
		return unavailable(err)
	}
	s.emit(ctx, boardID, boardID, domain.EntityBoard, domain.TimerUpdated, userID, nil)
	return nil
}
