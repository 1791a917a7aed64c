package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

type fakeBoards struct {
	board domain.Board
	cards []domain.Card
	err   error
	calls int
}

func (f *fakeBoards) Board(ctx context.Context, boardID string) (domain.Board, []domain.Card, error) {
	f.calls++
	if f.err != nil {
		return domain.Board{}, nil, f.err
	}
	return f.board, f.cards, nil
}

type fakeStreamRealtime struct {
	snapshot []byte
}

func (f *fakeStreamRealtime) LoadSnapshot(ctx context.Context, boardID string) ([]byte, bool) {
	if f.snapshot == nil {
		return nil, false
	}
	return f.snapshot, true
}

func (f *fakeStreamRealtime) SubscribeEvents(ctx context.Context, boardID string) (<-chan *redis.Message, func(), error) {
	return make(chan *redis.Message), func() {}, nil
}

type fakePresence struct {
	joinErr     error
	joined      [][2]string
	left        [][2]string
	disconnects [][2]string
}

func (f *fakePresence) Join(ctx context.Context, boardID, userID, name string) (domain.OnlineUser, error) {
	if f.joinErr != nil {
		return domain.OnlineUser{}, f.joinErr
	}
	f.joined = append(f.joined, [2]string{boardID, userID})
	return domain.OnlineUser{ID: userID, BoardID: boardID, Name: name}, nil
}

func (f *fakePresence) Leave(ctx context.Context, boardID, userID string) error {
	f.left = append(f.left, [2]string{boardID, userID})
	return nil
}

func (f *fakePresence) Disconnect(ctx context.Context, boardID, userID string) {
	f.disconnects = append(f.disconnects, [2]string{boardID, userID})
}

func (f *fakePresence) Heartbeat(ctx context.Context, boardID, userID string) error { return nil }

func (f *fakePresence) SubscribeToParticipants(ctx context.Context, boardID string, cb func([]domain.OnlineUser)) (func(), error) {
	cb([]domain.OnlineUser{{ID: "u1", Name: "Alice", BoardID: boardID}})
	return func() {}, nil
}

type staticAuth struct {
	header string
	err    error
}

func (a *staticAuth) UserIDFromAuthHeader(h string) (string, error) {
	a.header = h
	if a.err != nil {
		return "", a.err
	}
	return "u1", nil
}

func TestSnapshotServesFromCache(t *testing.T) {
	boards := &fakeBoards{}
	rt := &fakeStreamRealtime{snapshot: []byte(`{"board":{"id":"B1","name":"retro"},"cards":[{"id":"c1"}]}`)}

	data, err := snapshot(context.Background(), boards, rt, "B1", []domain.OnlineUser{{ID: "u1"}})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if boards.calls != 0 {
		t.Fatalf("warm cache still hit the document store")
	}
	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Board.ID != "B1" || len(payload.Cards) != 1 || len(payload.Participants) != 1 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestSnapshotFallsBackToStore(t *testing.T) {
	boards := &fakeBoards{board: domain.Board{ID: "B1"}, cards: []domain.Card{{ID: "c1"}}}
	rt := &fakeStreamRealtime{}

	data, err := snapshot(context.Background(), boards, rt, "B1", nil)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if boards.calls != 1 {
		t.Fatalf("store calls = %d, want 1", boards.calls)
	}
	var payload snapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Participants == nil {
		t.Fatalf("participants should render as an empty list, not null")
	}
}

func TestSnapshotFallsBackOnMalformedCacheEntry(t *testing.T) {
	boards := &fakeBoards{board: domain.Board{ID: "B1"}}
	rt := &fakeStreamRealtime{snapshot: []byte("not json")}

	if _, err := snapshot(context.Background(), boards, rt, "B1", nil); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if boards.calls != 1 {
		t.Fatalf("malformed cache entry did not fall back to the store")
	}
}

func TestStreamRequiresBoardParam(t *testing.T) {
	e := echo.New()
	Register(e, &fakeBoards{}, &fakeStreamRealtime{}, &fakePresence{}, &staticAuth{})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStreamRejectsBadToken(t *testing.T) {
	e := echo.New()
	pres := &fakePresence{}
	Register(e, &fakeBoards{}, &fakeStreamRealtime{}, pres, &staticAuth{err: errors.New("bad token")})

	req := httptest.NewRequest(http.MethodGet, "/stream?board=B1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(pres.joined) != 0 {
		t.Fatalf("unauthorized request joined the board")
	}
}

func TestStreamAcceptsTokenQueryParam(t *testing.T) {
	e := echo.New()
	auth := &staticAuth{err: errors.New("still rejected")}
	Register(e, &fakeBoards{}, &fakeStreamRealtime{}, &fakePresence{}, auth)

	req := httptest.NewRequest(http.MethodGet, "/stream?board=B1&token=abc", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if auth.header != "Bearer abc" {
		t.Fatalf("auth header = %q, want token promoted from query param", auth.header)
	}
}

func TestStreamUnknownBoard(t *testing.T) {
	e := echo.New()
	pres := &fakePresence{joinErr: fmt.Errorf("board B1: %w", domain.ErrNotFound)}
	Register(e, &fakeBoards{}, &fakeStreamRealtime{}, pres, &staticAuth{})

	req := httptest.NewRequest(http.MethodGet, "/stream?board=B1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStreamDeliversSnapshotAndDisconnects(t *testing.T) {
	e := echo.New()
	boards := &fakeBoards{board: domain.Board{ID: "B1", Name: "retro"}}
	pres := &fakePresence{}
	Register(e, boards, &fakeStreamRealtime{}, pres, &staticAuth{})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/stream?board=B1&name=Alice", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(done)
	}()
	// The handler blocks until the connection drops.
	cancel()
	<-done

	if len(pres.joined) != 1 || pres.joined[0] != [2]string{"B1", "u1"} {
		t.Fatalf("joined = %v", pres.joined)
	}
	if len(pres.disconnects) != 1 || pres.disconnects[0] != [2]string{"B1", "u1"} {
		t.Fatalf("disconnects = %v", pres.disconnects)
	}
	if rec.Header().Get(echo.HeaderContentType) != "text/event-stream" {
		t.Fatalf("content type = %s", rec.Header().Get(echo.HeaderContentType))
	}
	body := rec.Body.String()
	if body == "" || body[:6] != "data: " {
		t.Fatalf("body = %q, want SSE framing", body)
	}
	var payload snapshotPayload
	if err := json.Unmarshal([]byte(body[6:len(body)-2]), &payload); err != nil {
		t.Fatalf("decode first frame: %v", err)
	}
	if payload.Board.ID != "B1" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestLeaveBoard(t *testing.T) {
	e := echo.New()
	pres := &fakePresence{}
	Register(e, &fakeBoards{}, &fakeStreamRealtime{}, pres, &staticAuth{})

	req := httptest.NewRequest(http.MethodPost, "/boards/B1/leave", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(pres.left) != 1 || pres.left[0] != [2]string{"B1", "u1"} {
		t.Fatalf("left = %v", pres.left)
	}
}
