package domain

import "sort"

// PositionStep is the spacing between neighboring cards after a re-key. Every
// reorder rewrites the affected column with positions 0, 1000, 2000, ... so
// ordering keys never accumulate precision drift.
const PositionStep int64 = 1000

// Card is a single feedback card. Position orders cards within their
// (board, column) pair and carries no meaning across columns.
type Card struct {
	ID         string `json:"id"`
	BoardID    string `json:"boardId"`
	ColumnID   string `json:"columnId"`
	Content    string `json:"content"`
	AuthorID   string `json:"authorId"`
	AuthorName string `json:"authorName"`
	CreatedAt  int64  `json:"createdAt"`
	Votes      int    `json:"votes"`
	Position   int64  `json:"position"`
	Actionable bool   `json:"actionable,omitempty"`
	Color      string `json:"color,omitempty"`
}

// SortCardsByPosition orders cards ascending by Position. Transient position
// ties break by creation time, then id, so display order stays deterministic
// until the next reorder re-keys the column.
func SortCardsByPosition(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].Position != cards[j].Position {
			return cards[i].Position < cards[j].Position
		}
		if cards[i].CreatedAt != cards[j].CreatedAt {
			return cards[i].CreatedAt < cards[j].CreatedAt
		}
		return cards[i].ID < cards[j].ID
	})
}

// CardsInColumn filters cards down to one column and sorts them by position.
func CardsInColumn(cards []Card, columnID string) []Card {
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if c.ColumnID == columnID {
			out = append(out, c)
		}
	}
	SortCardsByPosition(out)
	return out
}
