package service

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// ToggleReaction adds the reaction, switches it to another type, or removes
// it when the same type is sent again.
func (s *MessageService) ToggleReaction(ctx context.Context, actorID, messageID uint, request *dto.ToggleReactionRequest) (*dto.ToggleReactionResponse, error) {
	message, _, _, err := s.loadForMember(ctx, messageID, actorID)
	if err != nil {
		return nil, err
	}
	if message.DeletedForEveryone {
		return nil, chatError.NotAllowed("cannot react to a deleted message")
	}

	glyph := dto.ReactionGlyphs[request.Type]
	resp := &dto.ToggleReactionResponse{}

	err = s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := gorm.G[model.Reaction](tx).Where("message_id = ? AND user_id = ?", messageID, actorID).First(ctx)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = gorm.G[model.Reaction](tx).Create(ctx, &model.Reaction{
				MessageID: messageID,
				UserID:    actorID,
				Type:      request.Type,
				Glyph:     glyph,
			})
			if err != nil {
				return err
			}
			resp.Action = dto.ReactionCreated
			resp.Reaction = &dto.ReactionResponse{UserID: actorID, Type: request.Type, Glyph: glyph}
			return nil
		}
		if err != nil {
			return err
		}

		if existing.Type == request.Type {
			if _, err := gorm.G[model.Reaction](tx).Where("message_id = ? AND user_id = ?", messageID, actorID).Delete(ctx); err != nil {
				return err
			}
			resp.Action = dto.ReactionRemoved
			return nil
		}

		err = tx.Model(&model.Reaction{}).Where("message_id = ? AND user_id = ?", messageID, actorID).Updates(map[string]any{
			"type":  request.Type,
			"glyph": glyph,
		}).Error
		if err != nil {
			return err
		}
		resp.Action = dto.ReactionUpdated
		resp.Reaction = &dto.ReactionResponse{UserID: actorID, Type: request.Type, Glyph: glyph}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, chatError.Conflict("reaction changed concurrently, retry")
		}
		return nil, err
	}

	ev := event.ReactionChanged{MessageID: messageID, UserID: actorID}
	switch resp.Action {
	case dto.ReactionCreated:
		ev.Change, ev.Type, ev.Glyph = event.KindCreateReaction, request.Type, glyph
	case dto.ReactionUpdated:
		ev.Change, ev.Type, ev.Glyph = event.KindUpdateReaction, request.Type, glyph
	default:
		ev.Change = event.KindRemoveReaction
	}
	publish(ctx, s.Dep, event.ConversationTopic(message.ConversationID), actorID, ev)

	return resp, nil
}

// ToggleStar is private to the caller and is not broadcast.
func (s *MessageService) ToggleStar(ctx context.Context, actorID, messageID uint) (*dto.ToggleStarResponse, error) {
	if _, _, _, err := s.loadForMember(ctx, messageID, actorID); err != nil {
		return nil, err
	}

	resp := &dto.ToggleStarResponse{MessageID: messageID}
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := gorm.G[model.Starred](tx).Where("message_id = ? AND user_id = ?", messageID, actorID).Delete(ctx)
		if err != nil {
			return err
		}
		if rows > 0 {
			return nil
		}

		resp.Starred = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Starred{
			MessageID: messageID,
			UserID:    actorID,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// ListStarred only returns messages from conversations the caller still
// belongs to.
func (s *MessageService) ListStarred(ctx context.Context, userID uint, q *dto.PageQuery) (*dto.Page[dto.MessageResponse], error) {
	page := normalizePage(s.Dep, *q)

	tx := s.Dep.DB.WithContext(ctx).Model(&model.Starred{}).
		Where("starreds.user_id = ?", userID).
		Where(`starreds.message_id IN (SELECT messages.id FROM messages
			JOIN members ON members.conversation_id = messages.conversation_id AND members.user_id = ?
			WHERE messages.deleted_for_everyone = ?)`, userID, false).
		Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var stars []model.Starred
	err := tx.Order("starreds.created_at DESC, starreds.message_id DESC").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&stars).Error
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(stars))
	for _, st := range stars {
		ids = append(ids, st.MessageID)
	}

	var messages []model.Message
	if len(ids) > 0 {
		if err := s.Dep.DB.WithContext(ctx).Preload("Image").Preload("Reactions").Where("id IN ?", ids).Find(&messages).Error; err != nil {
			return nil, err
		}
	}

	// Keep the starred order.
	byID := make(map[uint]model.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}
	ordered := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}

	items, err := s.decorate(ctx, ordered, userID)
	if err != nil {
		return nil, err
	}

	res := dto.NewPage(items, page, total)
	return &res, nil
}
