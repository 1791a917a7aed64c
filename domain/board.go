package domain

// Column is one category lane on a board. Order is a dense small integer
// controlling lane placement; SortByVotes only affects client display order.
type Column struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Order       int    `json:"order"`
	SortByVotes bool   `json:"sortByVotes,omitempty"`
}

// ActionPoint is a follow-up item embedded in its board document. It has no
// identity outside the board.
type ActionPoint struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Assignee  string `json:"assignee,omitempty"`
}

// Timer holds the shared countdown state for a board.
type Timer struct {
	Running bool  `json:"running"`
	EndsAt  int64 `json:"endsAt,omitempty"`
	Seconds int64 `json:"seconds,omitempty"`
}

// Board is a retrospective board. Only the facilitator may delete it.
type Board struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	CreatedAt     int64             `json:"createdAt"`
	IsActive      bool              `json:"isActive"`
	FacilitatorID string            `json:"facilitatorId,omitempty"`
	LastActive    int64             `json:"lastActive"`
	Columns       map[string]Column `json:"columns"`
	ActionPoints  []ActionPoint     `json:"actionPoints,omitempty"`
	Timer         Timer             `json:"timer"`
}

// ColumnsInOrder returns the board's columns sorted by their Order field.
func (b Board) ColumnsInOrder() []Column {
	cols := make([]Column, 0, len(b.Columns))
	for _, c := range b.Columns {
		cols = append(cols, c)
	}
	for i := 1; i < len(cols); i++ {
		for j := i; j > 0 && less(cols[j], cols[j-1]); j-- {
			cols[j], cols[j-1] = cols[j-1], cols[j]
		}
	}
	return cols
}

func less(a, b Column) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	return a.ID < b.ID
}
