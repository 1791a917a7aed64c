package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, boards Boards, profiles Profiles, auth Authenticator, logger *log.Logger) {
	e.POST("/api/boards", createBoard(boards, auth))
	e.GET("/api/boards/:id", getBoard(boards, auth))
	e.PATCH("/api/boards/:id", renameBoard(boards, auth))
	e.DELETE("/api/boards/:id", deleteBoard(boards, auth))
	e.POST("/api/boards/:id/columns", addColumn(boards, auth))
	e.PATCH("/api/boards/:id/columns/:columnId", updateColumn(boards, auth))
	e.POST("/api/boards/:id/cards", addCard(boards, profiles, auth))
	e.PATCH("/api/boards/:id/cards/:cardId", updateCard(boards, auth))
	e.DELETE("/api/boards/:id/cards/:cardId", deleteCard(boards, auth))
	e.POST("/api/boards/:id/cards/:cardId/vote", voteCard(boards, auth))
	e.POST("/api/boards/:id/reorder", reorderCard(boards, auth, logger))
	e.POST("/api/boards/:id/actions", addActionPoint(boards, auth))
	e.PATCH("/api/boards/:id/actions/:actionId", updateActionPoint(boards, auth))
	e.DELETE("/api/boards/:id/actions/:actionId", deleteActionPoint(boards, auth))
	e.POST("/api/boards/:id/timer", setTimer(boards, auth))
	e.GET("/api/me", getProfile(profiles, auth))
	e.PUT("/api/me", putProfile(profiles, auth))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// decodeBody strictly decodes a JSON request body into dst.
func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeError maps domain errors onto HTTP statuses. Anything outside the
// taxonomy is a storage fault and reads as a 500.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return c.String(http.StatusForbidden, err.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

type boardResponse struct {
	Board domain.Board  `json:"board"`
	Cards []domain.Card `json:"cards"`
}

func createBoard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(c, &body); err != nil || body.Name == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		b, err := boards.CreateBoard(c.Request().Context(), body.Name, userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, b)
	}
}

func getBoard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		b, cards, err := boards.Board(c.Request().Context(), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, boardResponse{Board: b, Cards: cards})
	}
}

func renameBoard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(c, &body); err != nil || body.Name == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := boards.RenameBoard(c.Request().Context(), c.Param("id"), userID, body.Name); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteBoard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := boards.DeleteBoard(c.Request().Context(), c.Param("id"), userID); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func addColumn(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(c, &body); err != nil || body.Title == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		col, err := boards.AddColumn(c.Request().Context(), c.Param("id"), userID, body.Title)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, col)
	}
}

func updateColumn(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Title       *string `json:"title"`
			SortByVotes *bool   `json:"sortByVotes"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := boards.UpdateColumn(c.Request().Context(), c.Param("id"), userID, c.Param("columnId"), body.Title, body.SortByVotes); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func addCard(boards Boards, profiles Profiles, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			ColumnID string `json:"columnId"`
			Content  string `json:"content"`
		}
		if err := decodeBody(c, &body); err != nil || body.ColumnID == "" || body.Content == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		author := domain.User{ID: userID}
		if profile, err := profiles.GetUser(ctx, userID); err == nil && profile != nil {
			author = *profile
		}
		card, err := boards.AddCard(ctx, c.Param("id"), body.ColumnID, body.Content, author)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, card)
	}
}

func updateCard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Content    *string `json:"content"`
			Color      *string `json:"color"`
			Actionable *bool   `json:"actionable"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := boards.UpdateCard(c.Request().Context(), c.Param("id"), c.Param("cardId"), userID, body.Content, body.Color, body.Actionable); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteCard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := boards.DeleteCard(c.Request().Context(), c.Param("id"), c.Param("cardId"), userID); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func voteCard(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Delta int `json:"delta"`
		}
		if err := decodeBody(c, &body); err != nil || (body.Delta != 1 && body.Delta != -1) {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		votes, err := boards.Vote(c.Request().Context(), c.Param("id"), c.Param("cardId"), userID, body.Delta)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]int{"votes": votes})
	}
}

func reorderCard(boards Boards, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newReorderRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}
		_ = userID

		var body struct {
			CardID         string `json:"cardId"`
			SourceColumnID string `json:"sourceColumnId"`
			DestColumnID   string `json:"destColumnId"`
			DestIndex      int    `json:"destIndex"`
		}
		if decodeErr := decodeBody(c, &body); decodeErr != nil || body.CardID == "" || body.SourceColumnID == "" || body.DestColumnID == "" {
			metrics.SetErrorStage("invalid_body")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		metrics.SetCrossColumn(body.SourceColumnID != body.DestColumnID)

		applyStart := time.Now()
		reorderErr := boards.Reorder(c.Request().Context(), c.Param("id"), body.CardID, body.SourceColumnID, body.DestColumnID, body.DestIndex)
		metrics.ObserveApply(time.Since(applyStart))
		if reorderErr != nil {
			if errors.Is(reorderErr, domain.ErrNotFound) {
				metrics.SetErrorStage("not_found")
			} else {
				metrics.SetErrorStage("storage")
			}
			err = writeError(c, reorderErr)
			return err
		}
		err = c.NoContent(http.StatusNoContent)
		return err
	}
}

func addActionPoint(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Text     string `json:"text"`
			Assignee string `json:"assignee"`
		}
		if err := decodeBody(c, &body); err != nil || body.Text == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ap, err := boards.AddActionPoint(c.Request().Context(), c.Param("id"), userID, body.Text, body.Assignee)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, ap)
	}
}

func updateActionPoint(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Text      *string `json:"text"`
			Assignee  *string `json:"assignee"`
			Completed *bool   `json:"completed"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := boards.UpdateActionPoint(c.Request().Context(), c.Param("id"), userID, c.Param("actionId"), body.Text, body.Assignee, body.Completed); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteActionPoint(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		if err := boards.DeleteActionPoint(c.Request().Context(), c.Param("id"), userID, c.Param("actionId")); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func setTimer(boards Boards, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Action  string `json:"action"`
			Seconds int64  `json:"seconds"`
		}
		if err := decodeBody(c, &body); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ctx := c.Request().Context()
		boardID := c.Param("id")
		switch body.Action {
		case "start":
			if body.Seconds <= 0 {
				return c.String(http.StatusBadRequest, "invalid timer duration")
			}
			err = boards.StartTimer(ctx, boardID, userID, body.Seconds)
		case "extend":
			if body.Seconds <= 0 {
				return c.String(http.StatusBadRequest, "invalid timer duration")
			}
			err = boards.ExtendTimer(ctx, boardID, userID, body.Seconds)
		case "stop":
			err = boards.StopTimer(ctx, boardID, userID)
		default:
			return c.String(http.StatusBadRequest, "invalid timer action")
		}
		if err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func getProfile(profiles Profiles, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		u, err := profiles.GetUser(c.Request().Context(), userID)
		if err != nil {
			return writeError(c, err)
		}
		if u == nil {
			// First visit: the profile does not exist yet, but the color a
			// client should render is already determined by the palette.
			u = &domain.User{ID: userID, Color: domain.ColorForUser(userID)}
		}
		return c.JSON(http.StatusOK, u)
	}
}

func putProfile(profiles Profiles, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		}
		if err := decodeBody(c, &body); err != nil || body.Name == "" {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		ctx := c.Request().Context()
		u := domain.User{ID: userID, Name: body.Name, Color: body.Color}
		if u.Color == "" {
			u.Color = domain.ColorForUser(userID)
		}
		// Keep the board pointer maintained by the presence layer.
		if existing, err := profiles.GetUser(ctx, userID); err == nil && existing != nil {
			u.BoardID = existing.BoardID
		}
		if err := profiles.UpsertUser(ctx, u); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, u)
	}
}
