package api

import (
	"context"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

// Request bodies beyond this size are rejected during decode.
const requestBodyMaxSize = 1 << 20

// Boards abstracts the board service for handlers.
type Boards interface {
	CreateBoard(ctx context.Context, name, facilitatorID string) (domain.Board, error)
	Board(ctx context.Context, boardID string) (domain.Board, []domain.Card, error)
	RenameBoard(ctx context.Context, boardID, userID, name string) error
	DeleteBoard(ctx context.Context, boardID, userID string) error
	AddColumn(ctx context.Context, boardID, userID, title string) (domain.Column, error)
	UpdateColumn(ctx context.Context, boardID, userID, columnID string, title *string, sortByVotes *bool) error
	AddCard(ctx context.Context, boardID, columnID, content string, author domain.User) (domain.Card, error)
	UpdateCard(ctx context.Context, boardID, cardID, userID string, content, color *string, actionable *bool) error
	DeleteCard(ctx context.Context, boardID, cardID, userID string) error
	Vote(ctx context.Context, boardID, cardID, userID string, delta int) (int, error)
	Reorder(ctx context.Context, boardID, cardID, sourceColumnID, destColumnID string, destIndex int) error
	AddActionPoint(ctx context.Context, boardID, userID, text, assignee string) (domain.ActionPoint, error)
	UpdateActionPoint(ctx context.Context, boardID, userID, actionID string, text, assignee *string, completed *bool) error
	DeleteActionPoint(ctx context.Context, boardID, userID, actionID string) error
	StartTimer(ctx context.Context, boardID, userID string, seconds int64) error
	ExtendTimer(ctx context.Context, boardID, userID string, seconds int64) error
	StopTimer(ctx context.Context, boardID, userID string) error
}

// Profiles abstracts user profile persistence for handlers.
type Profiles interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, u domain.User) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
