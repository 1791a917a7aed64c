package storage

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

func TestBoardEntityRoundTrip(t *testing.T) {
	b := domain.Board{
		ID:            "B1",
		Name:          "sprint retro",
		CreatedAt:     1700000000000,
		IsActive:      true,
		FacilitatorID: "alice",
		LastActive:    1700000100000,
		Columns: map[string]domain.Column{
			"col1": {ID: "col1", Title: "Went Well", Order: 0},
			"col2": {ID: "col2", Title: "To Improve", Order: 1, SortByVotes: true},
		},
		ActionPoints: []domain.ActionPoint{
			{ID: "ap1", Text: "schedule follow-up", Assignee: "bob", Completed: true},
		},
		Timer: domain.Timer{Running: true, EndsAt: 1700000200000, Seconds: 300},
	}

	ent, err := boardToEntity(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if ent.PartitionKey != "B1" || ent.RowKey != "B1" {
		t.Fatalf("keys = %s/%s", ent.PartitionKey, ent.RowKey)
	}
	if ent.LastActiveType != EdmInt64 || ent.TimerEndsAtType != EdmInt64 {
		t.Fatalf("missing int64 annotations: %+v", ent)
	}

	got, err := entityToBoard(ent)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Name != b.Name || got.FacilitatorID != b.FacilitatorID || got.LastActive != b.LastActive {
		t.Fatalf("board = %+v", got)
	}
	if len(got.Columns) != 2 || !got.Columns["col2"].SortByVotes {
		t.Fatalf("columns = %+v", got.Columns)
	}
	if len(got.ActionPoints) != 1 || !got.ActionPoints[0].Completed {
		t.Fatalf("action points = %+v", got.ActionPoints)
	}
	if got.Timer != b.Timer {
		t.Fatalf("timer = %+v", got.Timer)
	}
}

func TestEntityToBoardEmptyNestedFields(t *testing.T) {
	b, err := entityToBoard(boardEntity{Entity: Entity{PartitionKey: "B1", RowKey: "B1"}, Name: "bare"})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Columns == nil {
		t.Fatal("columns map should be initialized")
	}
	if len(b.ActionPoints) != 0 {
		t.Fatalf("action points = %+v", b.ActionPoints)
	}
}

func TestCardEntityRoundTrip(t *testing.T) {
	c := domain.Card{
		ID:         "C1",
		BoardID:    "B1",
		ColumnID:   "col1",
		Content:    "less meetings",
		AuthorID:   "alice",
		AuthorName: "Alice",
		CreatedAt:  1700000000000,
		Votes:      3,
		Position:   2000,
		Actionable: true,
		Color:      "#123456",
	}

	ent := cardToEntity(c)
	if ent.PartitionKey != "B1" || ent.RowKey != "C1" {
		t.Fatalf("cards must partition by board: %s/%s", ent.PartitionKey, ent.RowKey)
	}
	if ent.PositionType != EdmInt64 || ent.CreatedAtType != EdmInt64 {
		t.Fatalf("missing int64 annotations: %+v", ent)
	}
	if got := entityToCard(ent); got != c {
		t.Fatalf("card = %+v, want %+v", got, c)
	}
}

func TestCardEntityEncodesInt64AsString(t *testing.T) {
	data, err := json.Marshal(cardToEntity(domain.Card{ID: "C1", BoardID: "B1", Position: 9007199254740993}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"Position":"9007199254740993"`) {
		t.Fatalf("position not encoded as string: %s", s)
	}
	if !strings.Contains(s, `"Position@odata.type":"Edm.Int64"`) {
		t.Fatalf("missing odata annotation: %s", s)
	}
}

func TestNewPositionUpdate(t *testing.T) {
	upd := NewPositionUpdate("B1", "C1", 3000)
	if upd.PartitionKey != "B1" || upd.RowKey != "C1" {
		t.Fatalf("keys = %s/%s", upd.PartitionKey, upd.RowKey)
	}
	if upd.Position == nil || *upd.Position != 3000 {
		t.Fatalf("position = %v", upd.Position)
	}
	if upd.PositionType == nil || *upd.PositionType != EdmInt64 {
		t.Fatalf("position type = %v", upd.PositionType)
	}

	data, err := json.Marshal(upd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// A position update must not touch any other card field.
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(fields) != 4 {
		t.Fatalf("merge payload = %s", data)
	}
}

func TestNewLastActiveUpdate(t *testing.T) {
	upd := NewLastActiveUpdate("B1", 1700000000000)
	if upd.PartitionKey != "B1" || upd.RowKey != "B1" {
		t.Fatalf("keys = %s/%s", upd.PartitionKey, upd.RowKey)
	}
	data, err := json.Marshal(upd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(fields) != 4 {
		t.Fatalf("merge payload = %s", data)
	}
	if fields["LastActive"] != "1700000000000" {
		t.Fatalf("lastActive = %v", fields["LastActive"])
	}
}
