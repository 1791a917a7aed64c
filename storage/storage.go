package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

// Azure table transactions accept at most 100 actions per batch.
const transactionLimit = 100

// Storage provides access to the board document tables and the board-events
// queue. Cards are partitioned by board id, so per-board card operations stay
// within a single partition and batch atomically.
type Storage struct {
	boardTable  *aztables.Client
	cardTable   *aztables.Client
	userTable   *aztables.Client
	eventsQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardsTable, cardsTable, usersTable, eventsQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	bt := svc.NewClient(boardsTable)
	ct := svc.NewClient(cardsTable)
	ut := svc.NewClient(usersTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventsQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{boardTable: bt, cardTable: ct, userTable: ut, eventsQueue: eq}, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// GetBoard retrieves a board document if present. Missing boards return
// (nil, nil).
func (s *Storage) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	ent, err := s.boardTable.GetEntity(ctx, boardID, boardID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var raw boardEntity
	if err := json.Unmarshal(ent.Value, &raw); err != nil {
		return nil, err
	}
	b, err := entityToBoard(raw)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBoards retrieves every board document. Used by the cleanup sweep.
func (s *Storage) ListBoards(ctx context.Context) ([]domain.Board, error) {
	pager := s.boardTable.NewListEntitiesPager(nil)
	boards := []domain.Board{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var raw boardEntity
			if err := json.Unmarshal(e, &raw); err != nil {
				return nil, err
			}
			b, err := entityToBoard(raw)
			if err != nil {
				return nil, err
			}
			boards = append(boards, b)
		}
	}
	return boards, nil
}

// UpsertBoard creates or replaces a board document.
func (s *Storage) UpsertBoard(ctx context.Context, b domain.Board) error {
	ent, err := boardToEntity(b)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.boardTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// UpdateBoard merges changes into an existing board document.
func (s *Storage) UpdateBoard(ctx context.Context, upd BoardUpdate) error {
	payload, err := json.Marshal(upd)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.boardTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// DeleteBoard removes a board document. Deleting an already-absent board is
// not an error.
func (s *Storage) DeleteBoard(ctx context.Context, boardID string) error {
	_, err := s.boardTable.DeleteEntity(ctx, boardID, boardID, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// ListCards retrieves all cards for the given board with a single
// partition-filtered read.
func (s *Storage) ListCards(ctx context.Context, boardID string) ([]domain.Card, error) {
	filter := "PartitionKey eq '" + boardID + "'"
	pager := s.cardTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	cards := []domain.Card{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent cardEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			cards = append(cards, entityToCard(ent))
		}
	}
	return cards, nil
}

// GetCard retrieves a single card if present. Missing cards return
// (nil, nil).
func (s *Storage) GetCard(ctx context.Context, boardID, cardID string) (*domain.Card, error) {
	ent, err := s.cardTable.GetEntity(ctx, boardID, cardID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var raw cardEntity
	if err := json.Unmarshal(ent.Value, &raw); err != nil {
		return nil, err
	}
	c := entityToCard(raw)
	return &c, nil
}

// UpsertCard creates or replaces a card.
func (s *Storage) UpsertCard(ctx context.Context, c domain.Card) error {
	payload, err := json.Marshal(cardToEntity(c))
	if err == nil {
		_, err = s.cardTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// UpdateCard merges changes into an existing card.
func (s *Storage) UpdateCard(ctx context.Context, upd CardUpdate) error {
	payload, err := json.Marshal(upd)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.cardTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// DeleteCard removes a single card.
func (s *Storage) DeleteCard(ctx context.Context, boardID, cardID string) error {
	_, err := s.cardTable.DeleteEntity(ctx, boardID, cardID, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// ApplyCardUpdates submits the given card updates as atomic per-partition
// transactions. All updates must target the same board partition. Batches of
// up to 100 actions apply all-or-nothing; a reorder never exceeds one batch
// for boards of realistic size.
func (s *Storage) ApplyCardUpdates(ctx context.Context, updates []CardUpdate) error {
	for start := 0; start < len(updates); start += transactionLimit {
		end := start + transactionLimit
		if end > len(updates) {
			end = len(updates)
		}
		actions := make([]aztables.TransactionAction, 0, end-start)
		for _, upd := range updates[start:end] {
			payload, err := json.Marshal(upd)
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeUpdateMerge,
				Entity:     payload,
			})
		}
		if _, err := s.cardTable.SubmitTransaction(ctx, actions, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBoardCards removes every card in the board's partition via atomic
// delete batches.
func (s *Storage) DeleteBoardCards(ctx context.Context, boardID string) error {
	cards, err := s.ListCards(ctx, boardID)
	if err != nil {
		return err
	}
	for start := 0; start < len(cards); start += transactionLimit {
		end := start + transactionLimit
		if end > len(cards) {
			end = len(cards)
		}
		actions := make([]aztables.TransactionAction, 0, end-start)
		for _, c := range cards[start:end] {
			payload, err := json.Marshal(Entity{PartitionKey: boardID, RowKey: c.ID})
			if err != nil {
				return err
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeDelete,
				Entity:     payload,
			})
		}
		if _, err := s.cardTable.SubmitTransaction(ctx, actions, nil); err != nil {
			return err
		}
	}
	return nil
}

// GetUser retrieves a user profile if present. Missing users return
// (nil, nil).
func (s *Storage) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	ent, err := s.userTable.GetEntity(ctx, userID, userID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var raw userEntity
	if err := json.Unmarshal(ent.Value, &raw); err != nil {
		return nil, err
	}
	return &domain.User{ID: raw.RowKey, Name: raw.Name, Color: raw.Color, BoardID: raw.BoardID}, nil
}

// UpsertUser creates or replaces a user profile.
func (s *Storage) UpsertUser(ctx context.Context, u domain.User) error {
	ent := userEntity{
		Entity:  Entity{PartitionKey: u.ID, RowKey: u.ID},
		Name:    u.Name,
		Color:   u.Color,
		BoardID: u.BoardID,
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.userTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// UpdateUser merges changes into an existing user profile.
func (s *Storage) UpdateUser(ctx context.Context, upd UserUpdate) error {
	payload, err := json.Marshal(upd)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.userTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// EnqueueEvent sends a change event to the board-events queue.
func (s *Storage) EnqueueEvent(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.eventsQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// DequeueEvent retrieves a single message from the board-events queue.
func (s *Storage) DequeueEvent(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.eventsQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// DeleteEvent removes a processed message from the queue.
func (s *Storage) DeleteEvent(ctx context.Context, id, receipt string) error {
	_, err := s.eventsQueue.DeleteMessage(ctx, id, receipt, nil)
	return err
}
