package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/DigitalEpidemic/retro-tool-sub001/domain"
	"github.com/DigitalEpidemic/retro-tool-sub001/storage"
)

// Reorder moves a card to destIndex within the destination column and
// re-keys every card in the affected column(s) with evenly spaced positions.
// The full re-key trades write volume for simplicity: inserting between
// neighboring keys would eventually exhaust the gap, a rewritten column never
// does. All position writes land in one atomic per-partition batch, so a
// failed reorder commits nothing.
//
// destIndex addresses the destination column's current position ordering and
// is clamped into range. Concurrent reorders on the same column are
// last-batch-wins.
func (s *Service) Reorder(ctx context.Context, boardID, cardID, sourceColumnID, destColumnID string, destIndex int) error {
	cards, err := s.st.ListCards(ctx, boardID)
	if err != nil {
		return unavailable(err)
	}

	var moved *domain.Card
	for i := range cards {
		if cards[i].ID == cardID {
			moved = &cards[i]
			break
		}
	}
	if moved == nil {
		log.WithFields(log.Fields{"board": boardID, "card": cardID}).Error("reorder requested for missing card")
		return fmt.Errorf("card %s: %w", cardID, domain.ErrNotFound)
	}

	source := domain.CardsInColumn(cards, sourceColumnID)
	for i := range source {
		if source[i].ID == cardID {
			source = append(source[:i], source[i+1:]...)
			break
		}
	}

	dest := source
	crossColumn := destColumnID != sourceColumnID
	if crossColumn {
		dest = domain.CardsInColumn(cards, destColumnID)
	}
	if destIndex < 0 {
		destIndex = 0
	}
	if destIndex > len(dest) {
		destIndex = len(dest)
	}
	dest = append(dest[:destIndex], append([]domain.Card{*moved}, dest[destIndex:]...)...)

	updates := rekey(boardID, dest)
	if crossColumn {
		updates = append(updates, rekey(boardID, source)...)
		for i := range updates {
			if updates[i].RowKey == cardID {
				col := destColumnID
				updates[i].ColumnID = &col
			}
		}
	}

	if err := s.st.ApplyCardUpdates(ctx, updates); err != nil {
		return unavailable(err)
	}
	s.emit(ctx, boardID, cardID, domain.EntityCard, domain.CardMoved, moved.AuthorID, domain.CardMovedEventData{
		SourceColumnID: sourceColumnID,
		DestColumnID:   destColumnID,
		DestIndex:      destIndex,
	})
	return nil
}

// rekey assigns fresh evenly spaced positions to every card in column order.
func rekey(boardID string, cards []domain.Card) []storage.CardUpdate {
	updates := make([]storage.CardUpdate, 0, len(cards))
	for i, c := range cards {
		updates = append(updates, storage.NewPositionUpdate(boardID, c.ID, int64(i)*domain.PositionStep))
	}
	return updates
}
