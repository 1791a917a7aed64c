package storage

import (
	"encoding/json"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

// Entity represents base table entity keys.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

const (
	EdmInt64   = "Edm.Int64"
	EdmBoolean = "Edm.Boolean"
)

// boardEntity stores a board document. Columns and ActionPoints are nested
// structures the table service cannot represent, so they ride as JSON strings.
type boardEntity struct {
	Entity
	Name             string `json:"Name"`
	CreatedAt        int64  `json:"CreatedAt,string"`
	CreatedAtType    string `json:"CreatedAt@odata.type"`
	IsActive         bool   `json:"IsActive"`
	FacilitatorID    string `json:"FacilitatorId,omitempty"`
	LastActive       int64  `json:"LastActive,string"`
	LastActiveType   string `json:"LastActive@odata.type"`
	Columns          string `json:"Columns,omitempty"`
	ActionPoints     string `json:"ActionPoints,omitempty"`
	TimerRunning     bool   `json:"TimerRunning"`
	TimerEndsAt      int64  `json:"TimerEndsAt,string"`
	TimerEndsAtType  string `json:"TimerEndsAt@odata.type"`
	TimerSeconds     int64  `json:"TimerSeconds,string"`
	TimerSecondsType string `json:"TimerSeconds@odata.type"`
}

// BoardUpdate carries partial updates for a board entity.
type BoardUpdate struct {
	Entity
	Name             *string `json:"Name,omitempty"`
	IsActive         *bool   `json:"IsActive,omitempty"`
	LastActive       *int64  `json:"LastActive,omitempty,string"`
	LastActiveType   *string `json:"LastActive@odata.type,omitempty"`
	Columns          *string `json:"Columns,omitempty"`
	ActionPoints     *string `json:"ActionPoints,omitempty"`
	TimerRunning     *bool   `json:"TimerRunning,omitempty"`
	TimerEndsAt      *int64  `json:"TimerEndsAt,omitempty,string"`
	TimerEndsAtType  *string `json:"TimerEndsAt@odata.type,omitempty"`
	TimerSeconds     *int64  `json:"TimerSeconds,omitempty,string"`
	TimerSecondsType *string `json:"TimerSeconds@odata.type,omitempty"`
}

// cardEntity stores a card. Cards are partitioned by board so a board's cards
// can be listed with one filter and rewritten in one transaction.
type cardEntity struct {
	Entity
	ColumnID      string `json:"ColumnId"`
	Content       string `json:"Content"`
	AuthorID      string `json:"AuthorId"`
	AuthorName    string `json:"AuthorName"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	Votes         int    `json:"Votes"`
	Position      int64  `json:"Position,string"`
	PositionType  string `json:"Position@odata.type"`
	Actionable    bool   `json:"Actionable"`
	Color         string `json:"Color,omitempty"`
}

// CardUpdate carries partial updates for a card entity.
type CardUpdate struct {
	Entity
	ColumnID     *string `json:"ColumnId,omitempty"`
	Content      *string `json:"Content,omitempty"`
	Votes        *int    `json:"Votes,omitempty"`
	Position     *int64  `json:"Position,omitempty,string"`
	PositionType *string `json:"Position@odata.type,omitempty"`
	Actionable   *bool   `json:"Actionable,omitempty"`
	Color        *string `json:"Color,omitempty"`
}

type userEntity struct {
	Entity
	Name    string `json:"Name"`
	Color   string `json:"Color,omitempty"`
	BoardID string `json:"BoardId,omitempty"`
}

// UserUpdate carries partial updates for a user profile.
type UserUpdate struct {
	Entity
	Name    *string `json:"Name,omitempty"`
	Color   *string `json:"Color,omitempty"`
	BoardID *string `json:"BoardId,omitempty"`
}

// NewPositionUpdate builds a merge update assigning a card's ordering key.
func NewPositionUpdate(boardID, cardID string, pos int64) CardUpdate {
	t := EdmInt64
	return CardUpdate{
		Entity:       Entity{PartitionKey: boardID, RowKey: cardID},
		Position:     &pos,
		PositionType: &t,
	}
}

// NewLastActiveUpdate builds a merge update stamping a board's activity time.
func NewLastActiveUpdate(boardID string, ts int64) BoardUpdate {
	t := EdmInt64
	return BoardUpdate{
		Entity:         Entity{PartitionKey: boardID, RowKey: boardID},
		LastActive:     &ts,
		LastActiveType: &t,
	}
}

func boardToEntity(b domain.Board) (boardEntity, error) {
	cols, err := json.Marshal(b.Columns)
	if err != nil {
		return boardEntity{}, err
	}
	ent := boardEntity{
		Entity:           Entity{PartitionKey: b.ID, RowKey: b.ID},
		Name:             b.Name,
		CreatedAt:        b.CreatedAt,
		CreatedAtType:    EdmInt64,
		IsActive:         b.IsActive,
		FacilitatorID:    b.FacilitatorID,
		LastActive:       b.LastActive,
		LastActiveType:   EdmInt64,
		Columns:          string(cols),
		TimerRunning:     b.Timer.Running,
		TimerEndsAt:      b.Timer.EndsAt,
		TimerEndsAtType:  EdmInt64,
		TimerSeconds:     b.Timer.Seconds,
		TimerSecondsType: EdmInt64,
	}
	if len(b.ActionPoints) > 0 {
		aps, err := json.Marshal(b.ActionPoints)
		if err != nil {
			return boardEntity{}, err
		}
		ent.ActionPoints = string(aps)
	}
	return ent, nil
}

func entityToBoard(ent boardEntity) (domain.Board, error) {
	b := domain.Board{
		ID:            ent.RowKey,
		Name:          ent.Name,
		CreatedAt:     ent.CreatedAt,
		IsActive:      ent.IsActive,
		FacilitatorID: ent.FacilitatorID,
		LastActive:    ent.LastActive,
		Columns:       map[string]domain.Column{},
		Timer: domain.Timer{
			Running: ent.TimerRunning,
			EndsAt:  ent.TimerEndsAt,
			Seconds: ent.TimerSeconds,
		},
	}
	if ent.Columns != "" {
		if err := json.Unmarshal([]byte(ent.Columns), &b.Columns); err != nil {
			return domain.Board{}, err
		}
	}
	if ent.ActionPoints != "" {
		if err := json.Unmarshal([]byte(ent.ActionPoints), &b.ActionPoints); err != nil {
			return domain.Board{}, err
		}
	}
	return b, nil
}

func cardToEntity(c domain.Card) cardEntity {
	return cardEntity{
		Entity:        Entity{PartitionKey: c.BoardID, RowKey: c.ID},
		ColumnID:      c.ColumnID,
		Content:       c.Content,
		AuthorID:      c.AuthorID,
		AuthorName:    c.AuthorName,
		CreatedAt:     c.CreatedAt,
		CreatedAtType: EdmInt64,
		Votes:         c.Votes,
		Position:      c.Position,
		PositionType:  EdmInt64,
		Actionable:    c.Actionable,
		Color:         c.Color,
	}
}

func entityToCard(ent cardEntity) domain.Card {
	return domain.Card{
		ID:         ent.RowKey,
		BoardID:    ent.PartitionKey,
		ColumnID:   ent.ColumnID,
		Content:    ent.Content,
		AuthorID:   ent.AuthorID,
		AuthorName: ent.AuthorName,
		CreatedAt:  ent.CreatedAt,
		Votes:      ent.Votes,
		Position:   ent.Position,
		Actionable: ent.Actionable,
		Color:      ent.Color,
	}
}
