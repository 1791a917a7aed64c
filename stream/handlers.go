// Package stream serves live board state over SSE. A connection doubles as
// the user's presence on the board: joining happens when the stream opens and
// the pre-registered disconnect actions fire when it drops.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

const heartbeatInterval = 30 * time.Second

// Boards abstracts board reads for snapshot pushes.
type Boards interface {
	Board(ctx context.Context, boardID string) (domain.Board, []domain.Card, error)
}

// Realtime abstracts the realtime store operations the stream layer needs.
type Realtime interface {
	LoadSnapshot(ctx context.Context, boardID string) ([]byte, bool)
	SubscribeEvents(ctx context.Context, boardID string) (<-chan *redis.Message, func(), error)
}

// Presence abstracts the presence manager.
type Presence interface {
	Join(ctx context.Context, boardID, userID, name string) (domain.OnlineUser, error)
	Leave(ctx context.Context, boardID, userID string) error
	Disconnect(ctx context.Context, boardID, userID string)
	Heartbeat(ctx context.Context, boardID, userID string) error
	SubscribeToParticipants(ctx context.Context, boardID string, cb func([]domain.OnlineUser)) (func(), error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Register wires up stream endpoints on the given Echo instance.
func Register(e *echo.Echo, boards Boards, rt Realtime, pres Presence, auth Authenticator) {
	e.GET("/stream", streamBoard(boards, rt, pres, auth))
	e.POST("/boards/:id/leave", leaveBoard(pres, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type snapshotPayload struct {
	Board        domain.Board        `json:"board"`
	Cards        []domain.Card       `json:"cards"`
	Participants []domain.OnlineUser `json:"participants"`
}

func streamBoard(boards Boards, rt Realtime, pres Presence, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		boardID := c.QueryParam("board")
		if boardID == "" {
			return c.String(http.StatusBadRequest, "missing board")
		}
		// EventSource cannot set headers, so the token may ride a query param.
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		ctx := c.Request().Context()
		if _, err := pres.Join(ctx, boardID, userID, c.QueryParam("name")); err != nil {
			return writeJoinError(c, err)
		}
		// Network loss and client close both land here. An explicit leave has
		// already canceled the registered actions, making this a no-op.
		defer pres.Disconnect(context.Background(), boardID, userID)

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		events, eventsCleanup, err := rt.SubscribeEvents(ctx, boardID)
		if err != nil {
			c.Logger().Error(err)
			return err
		}
		defer eventsCleanup()

		var mu sync.Mutex
		var participants []domain.OnlineUser
		notify := make(chan struct{}, 1)
		partCleanup, err := pres.SubscribeToParticipants(ctx, boardID, func(users []domain.OnlineUser) {
			mu.Lock()
			participants = users
			mu.Unlock()
			select {
			case notify <- struct{}{}:
			default:
			}
		})
		if err != nil {
			c.Logger().Error(err)
			return err
		}
		defer partCleanup()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			mu.Lock()
			current := participants
			mu.Unlock()
			data, err := snapshot(ctx, boards, rt, boardID, current)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case <-events:
			case <-notify:
			case <-ticker.C:
				if err := pres.Heartbeat(ctx, boardID, userID); err != nil {
					c.Logger().Error(err)
				}
			}
		}
	}
}

// snapshot renders the SSE payload, serving cards from the snapshot cache
// when it is warm and falling back to the document store.
func snapshot(ctx context.Context, boards Boards, rt Realtime, boardID string, participants []domain.OnlineUser) ([]byte, error) {
	if participants == nil {
		participants = []domain.OnlineUser{}
	}
	if cached, ok := rt.LoadSnapshot(ctx, boardID); ok {
		var payload struct {
			Board domain.Board  `json:"board"`
			Cards []domain.Card `json:"cards"`
		}
		if err := json.Unmarshal(cached, &payload); err == nil {
			return json.Marshal(snapshotPayload{Board: payload.Board, Cards: payload.Cards, Participants: participants})
		}
	}
	b, cards, err := boards.Board(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshotPayload{Board: b, Cards: cards, Participants: participants})
}

func writeJoinError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return c.String(http.StatusNotFound, err.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

func leaveBoard(pres Presence, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := pres.Leave(c.Request().Context(), c.Param("id"), userID); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.NoContent(http.StatusNoContent)
	}
}
