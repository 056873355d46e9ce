package service

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// MarkSeen records the caller's seen status for a batch of messages.
// Re-marking is a no-op and concurrent batches never duplicate a row, so
// the aggregated seen-by sets only grow. Messages outside the caller's
// conversations and the caller's own messages are skipped.
func (s *MessageService) MarkSeen(ctx context.Context, userID uint, request *dto.MarkSeenRequest) (*dto.MarkSeenResponse, error) {
	ids := uniqueIDs(request.MessageIDs, 0)

	var (
		inserted int64
		marked   []model.Message
	)
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		messages, err := gorm.G[model.Message](tx).Where("id IN ?", ids).Find(ctx)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}

		conversationIDs := make([]uint, 0, len(messages))
		for _, m := range messages {
			conversationIDs = append(conversationIDs, m.ConversationID)
		}

		members, err := gorm.G[model.Member](tx).
			Where("user_id = ? AND conversation_id IN ?", userID, uniqueIDs(conversationIDs, 0)).
			Find(ctx)
		if err != nil {
			return err
		}
		memberOf := make(map[uint]uint, len(members))
		for _, m := range members {
			memberOf[m.ConversationID] = m.ID
		}

		now := model.NowUTC()
		var rows []model.SeenStatus
		for _, m := range messages {
			memberID, ok := memberOf[m.ConversationID]
			if !ok || m.SenderID == userID {
				continue
			}
			rows = append(rows, model.SeenStatus{MessageID: m.ID, MemberID: memberID, SeenAt: now})
			marked = append(marked, m)
		}
		if len(rows) == 0 {
			return nil
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return nil, err
	}

	markedIDs := make([]uint, 0, len(marked))
	for _, m := range marked {
		markedIDs = append(markedIDs, m.ID)
	}

	seen, err := seenByMembers(ctx, s.Dep.DB, markedIDs)
	if err != nil {
		return nil, err
	}

	resp := &dto.MarkSeenResponse{Seen: make([]dto.SeenStatusResponse, 0, len(marked))}
	byConversation := make(map[uint][]event.SeenDelta)
	var order []uint
	for _, m := range marked {
		resp.Seen = append(resp.Seen, dto.SeenStatusResponse{MessageID: m.ID, SeenByMemberIDs: seen[m.ID]})

		if _, ok := byConversation[m.ConversationID]; !ok {
			order = append(order, m.ConversationID)
		}
		byConversation[m.ConversationID] = append(byConversation[m.ConversationID], event.SeenDelta{
			MessageID:       m.ID,
			SeenByMemberIDs: seen[m.ID],
		})
	}

	if inserted == 0 {
		return resp, nil
	}

	for _, conversationID := range order {
		publish(ctx, s.Dep, event.ConversationTopic(conversationID), userID, event.MessagesSeen{
			ConversationID: conversationID,
			Deltas:         byConversation[conversationID],
		})
	}

	return resp, nil
}
