package realtime

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DisconnectAction is a write pre-registered to execute when the owning
// connection drops.
type DisconnectAction func(ctx context.Context) error

// DisconnectRegistry holds pending disconnect actions keyed by (board, user).
// The stream handler fires an entry when the connection's context ends; an
// explicit leave cancels it first so the actions never double-fire.
type DisconnectRegistry struct {
	mu      sync.Mutex
	pending map[string][]DisconnectAction
}

// NewDisconnectRegistry creates an empty registry.
func NewDisconnectRegistry() *DisconnectRegistry {
	return &DisconnectRegistry{pending: make(map[string][]DisconnectAction)}
}

func pairKey(boardID, userID string) string { return boardID + "/" + userID }

// Register replaces any pending actions for the pair. Re-joining a board
// re-registers, matching the single live presence record per pair.
func (r *DisconnectRegistry) Register(boardID, userID string, actions ...DisconnectAction) {
	r.mu.Lock()
	r.pending[pairKey(boardID, userID)] = actions
	r.mu.Unlock()
}

// Cancel removes pending actions for the pair without running them.
func (r *DisconnectRegistry) Cancel(boardID, userID string) {
	r.mu.Lock()
	delete(r.pending, pairKey(boardID, userID))
	r.mu.Unlock()
}

// Fire runs and removes the pending actions for the pair. Failures are logged
// and do not stop the remaining actions.
func (r *DisconnectRegistry) Fire(ctx context.Context, boardID, userID string) {
	r.mu.Lock()
	actions := r.pending[pairKey(boardID, userID)]
	delete(r.pending, pairKey(boardID, userID))
	r.mu.Unlock()
	for _, act := range actions {
		if err := act(ctx); err != nil {
			log.WithError(err).WithFields(log.Fields{"board": boardID, "user": userID}).Error("disconnect action failed")
		}
	}
}

// Pending reports whether actions are registered for the pair.
func (r *DisconnectRegistry) Pending(boardID, userID string) bool {
	r.mu.Lock()
	_, ok := r.pending[pairKey(boardID, userID)]
	r.mu.Unlock()
	return ok
}
