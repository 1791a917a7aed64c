// Package realtime wraps the Redis-backed realtime store: ephemeral presence
// records, per-user status records, per-board change channels and the board
// snapshot cache.
package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Store provides access to the realtime key space.
type Store struct {
	rc *redis.Client
}

// NewStore creates a Store using the provided Redis client.
func NewStore(rc *redis.Client) *Store {
	return &Store{rc: rc}
}

func participantsKey(boardID string) string { return "board:" + boardID + ":participants" }
func presenceChannel(boardID string) string { return "board:" + boardID + ":presence" }
func eventsChannel(boardID string) string   { return "board:" + boardID + ":events" }
func snapshotKey(boardID string) string     { return "board:" + boardID + ":snap" }
func statusKey(userID string) string        { return "status:" + userID }

// SetParticipant writes the presence record for a user on a board and
// notifies presence subscribers. Writing an existing record refreshes it, so
// at most one live record exists per (board, user) pair.
func (s *Store) SetParticipant(ctx context.Context, u domain.OnlineUser) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := s.rc.HSet(ctx, participantsKey(u.BoardID), u.ID, data).Err(); err != nil {
		return err
	}
	return s.rc.Publish(ctx, presenceChannel(u.BoardID), u.ID).Err()
}

// RemoveParticipant deletes the presence record for a user on a board and
// notifies presence subscribers.
func (s *Store) RemoveParticipant(ctx context.Context, boardID, userID string) error {
	if err := s.rc.HDel(ctx, participantsKey(boardID), userID).Err(); err != nil {
		return err
	}
	return s.rc.Publish(ctx, presenceChannel(boardID), userID).Err()
}

// Participants materializes the full presence list for a board, sorted by
// name for deterministic display order.
func (s *Store) Participants(ctx context.Context, boardID string) ([]domain.OnlineUser, error) {
	raw, err := s.rc.HGetAll(ctx, participantsKey(boardID)).Result()
	if err != nil {
		return nil, err
	}
	users := make([]domain.OnlineUser, 0, len(raw))
	for field, val := range raw {
		var u domain.OnlineUser
		if err := json.Unmarshal([]byte(val), &u); err != nil {
			log.WithError(err).WithField("board", boardID).Warnf("dropping malformed presence record %s", field)
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

// TouchParticipant refreshes the lastOnline stamp on an existing presence
// record. Heartbeats do not notify subscribers; the membership did not change.
func (s *Store) TouchParticipant(ctx context.Context, boardID, userID string, ts int64) error {
	val, err := s.rc.HGet(ctx, participantsKey(boardID), userID).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	var u domain.OnlineUser
	if err := json.Unmarshal([]byte(val), &u); err != nil {
		return err
	}
	u.LastOnline = ts
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.rc.HSet(ctx, participantsKey(boardID), userID, data).Err()
}

// ClearParticipants drops the whole presence subtree for a board.
func (s *Store) ClearParticipants(ctx context.Context, boardID string) error {
	if err := s.rc.Del(ctx, participantsKey(boardID)).Err(); err != nil {
		return err
	}
	return s.rc.Publish(ctx, presenceChannel(boardID), "").Err()
}

// SetStatus records whether a user's client is currently connected.
func (s *Store) SetStatus(ctx context.Context, userID string, online bool) error {
	status := StatusOffline
	if online {
		status = StatusOnline
	}
	return s.rc.Set(ctx, statusKey(userID), status, 0).Err()
}

// Status reads a user's connection status. Unknown users read as offline.
func (s *Store) Status(ctx context.Context, userID string) (string, error) {
	status, err := s.rc.Get(ctx, statusKey(userID)).Result()
	if err == redis.Nil {
		return StatusOffline, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// SubscribeParticipants invokes cb with the materialized participant list
// immediately and again after every presence change on the board. The
// returned cleanup detaches the listener; no callbacks fire afterwards.
func (s *Store) SubscribeParticipants(ctx context.Context, boardID string, cb func([]domain.OnlineUser)) (func(), error) {
	pubsub := s.rc.Subscribe(ctx, presenceChannel(boardID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}
	initial, err := s.Participants(ctx, boardID)
	if err != nil {
		pubsub.Close()
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		cb(initial)
		for range pubsub.Channel() {
			users, err := s.Participants(ctx, boardID)
			if err != nil {
				log.WithError(err).WithField("board", boardID).Error("failed to materialize participants")
				continue
			}
			cb(users)
		}
	}()
	cleanup := func() {
		pubsub.Close()
		<-done
	}
	return cleanup, nil
}

// PublishEvent fans a change payload out to the board's event channel.
func (s *Store) PublishEvent(ctx context.Context, boardID, payload string) error {
	return s.rc.Publish(ctx, eventsChannel(boardID), payload).Err()
}

// SubscribeEvents subscribes to the board's event channel and returns the
// message channel plus a cleanup detaching the subscription.
func (s *Store) SubscribeEvents(ctx context.Context, boardID string) (<-chan *redis.Message, func(), error) {
	pubsub := s.rc.Subscribe(ctx, eventsChannel(boardID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}
	cleanup := func() { pubsub.Close() }
	return pubsub.Channel(), cleanup, nil
}

// StoreSnapshot caches the serialized board snapshot.
func (s *Store) StoreSnapshot(ctx context.Context, boardID string, data []byte, ttl time.Duration) error {
	return s.rc.Set(ctx, snapshotKey(boardID), data, ttl).Err()
}

// LoadSnapshot reads the cached board snapshot, reporting whether it exists.
// Redis failures fall through as a cache miss.
func (s *Store) LoadSnapshot(ctx context.Context, boardID string) ([]byte, bool) {
	data, err := s.rc.Get(ctx, snapshotKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = s.rc.Del(ctx, snapshotKey(boardID)).Err()
		}
		return nil, false
	}
	return data, true
}

// DropSnapshot evicts the cached board snapshot.
func (s *Store) DropSnapshot(ctx context.Context, boardID string) {
	_, _ = s.rc.Del(ctx, snapshotKey(boardID)).Result()
}
