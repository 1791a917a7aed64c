package domain

import "hash/fnv"

// User is a profile document. BoardID points at the board the user is
// currently joined to and is cleared on leave.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	BoardID string `json:"boardId,omitempty"`
}

// OnlineUser is an ephemeral presence record scoped to one board.
type OnlineUser struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	BoardID    string `json:"boardId"`
	LastOnline int64  `json:"lastOnline"`
}

// Palette is the fixed set of participant colors.
var Palette = []string{
	"#EF4444",
	"#F97316",
	"#F59E0B",
	"#84CC16",
	"#10B981",
	"#06B6D4",
	"#3B82F6",
	"#8B5CF6",
	"#D946EF",
	"#EC4899",
}

// ColorForUser derives a palette color from the user id. The same id always
// maps to the same color, so users without a stored profile color still render
// consistently across clients.
func ColorForUser(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return Palette[h.Sum32()%uint32(len(Palette))]
}
