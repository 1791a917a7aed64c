package domain

import "testing"

func TestColorForUserIsDeterministic(t *testing.T) {
	for _, id := range []string{"u1", "u2", "alice", "bob", ""} {
		first := ColorForUser(id)
		for i := 0; i < 5; i++ {
			if got := ColorForUser(id); got != first {
				t.Fatalf("color for %q changed: %s then %s", id, first, got)
			}
		}
		found := false
		for _, c := range Palette {
			if c == first {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("color %s for %q not in palette", first, id)
		}
	}
}

func TestSortCardsByPosition(t *testing.T) {
	cards := []Card{
		{ID: "c", Position: 2000},
		{ID: "a", Position: 0},
		{ID: "b", Position: 1000},
	}
	SortCardsByPosition(cards)
	for i, id := range []string{"a", "b", "c"} {
		if cards[i].ID != id {
			t.Fatalf("cards[%d] = %s, want %s", i, cards[i].ID, id)
		}
	}
}

func TestSortCardsByPositionBreaksTies(t *testing.T) {
	cards := []Card{
		{ID: "b", Position: 500, CreatedAt: 20},
		{ID: "a", Position: 500, CreatedAt: 10},
		{ID: "d", Position: 500, CreatedAt: 20},
	}
	SortCardsByPosition(cards)
	for i, id := range []string{"a", "b", "d"} {
		if cards[i].ID != id {
			t.Fatalf("cards[%d] = %s, want %s", i, cards[i].ID, id)
		}
	}
}

func TestCardsInColumn(t *testing.T) {
	cards := []Card{
		{ID: "x", ColumnID: "col2", Position: 0},
		{ID: "b", ColumnID: "col1", Position: 1000},
		{ID: "a", ColumnID: "col1", Position: 0},
	}
	got := CardsInColumn(cards, "col1")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("col1 cards = %+v", got)
	}
}

func TestColumnsInOrder(t *testing.T) {
	b := Board{Columns: map[string]Column{
		"c": {ID: "c", Order: 2},
		"a": {ID: "a", Order: 0},
		"b": {ID: "b", Order: 1},
	}}
	cols := b.ColumnsInOrder()
	for i, id := range []string{"a", "b", "c"} {
		if cols[i].ID != id {
			t.Fatalf("cols[%d] = %s, want %s", i, cols[i].ID, id)
		}
	}
}
