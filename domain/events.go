package domain

import "encoding/json"

const (
	BoardCreated  = "board-created"
	BoardRenamed  = "board-renamed"
	BoardDeleted  = "board-deleted"
	ColumnUpdated = "column-updated"
	TimerUpdated  = "timer-updated"
	ActionsEdited = "action-points-edited"
	CardCreated   = "card-created"
	CardUpdated   = "card-updated"
	CardMoved     = "card-moved"
	CardDeleted   = "card-deleted"
	CardVoted     = "card-voted"
)

const (
	EntityBoard = "board"
	EntityCard  = "card"
)

// Event represents a change applied to a board or one of its cards. Events
// flow through the board-events queue to the notifier, which refreshes the
// snapshot cache and fans the payload out to subscribed stream connections.
type Event struct {
	ID         string          `json:"id"`
	BoardID    string          `json:"boardId"`
	EntityID   string          `json:"entityId"`
	EntityType string          `json:"entityType"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	UserID     string          `json:"userId"`
}

type CardMovedEventData struct {
	SourceColumnID string `json:"sourceColumnId"`
	DestColumnID   string `json:"destColumnId"`
	DestIndex      int    `json:"destIndex"`
}

type CardVotedEventData struct {
	Delta int `json:"delta"`
}
