package service

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// MessageService writes messages and their per-member state. Nothing is
// broadcast unless the write committed.
type MessageService struct {
	Dep           *dependency.Dependency
	Conversations *ConversationService
}

func NewMessageService(dep *dependency.Dependency, conversations *ConversationService) *MessageService {
	requireDB(dep, "MessageService")

	return &MessageService{
		Dep:           dep,
		Conversations: conversations,
	}
}

func isEdited(message *model.Message) bool {
	return !message.DeletedForEveryone && !message.UpdatedAt.Equal(message.CreatedAt)
}

func messageToResponse(message *model.Message, seenBy []uint, starred bool) dto.MessageResponse {
	resp := dto.MessageResponse{
		ID:                 message.ID,
		ConversationID:     message.ConversationID,
		SenderID:           message.SenderID,
		Type:               message.Type,
		Content:            message.Content,
		CreatedAt:          message.CreatedAt,
		UpdatedAt:          message.UpdatedAt,
		IsEdited:           isEdited(message),
		DeletedAt:          message.DeletedAt,
		DeletedForEveryone: message.DeletedForEveryone,
		Reactions:          make([]dto.ReactionResponse, 0, len(message.Reactions)),
		SeenByMemberIDs:    seenBy,
		Starred:            starred,
	}
	if resp.SeenByMemberIDs == nil {
		resp.SeenByMemberIDs = []uint{}
	}

	if message.Image != nil {
		resp.Image = &dto.FileDescriptor{
			ID:     message.Image.FileID,
			URL:    message.Image.URL,
			Size:   message.Image.Size,
			Width:  message.Image.Width,
			Height: message.Image.Height,
		}
	}

	for _, r := range message.Reactions {
		resp.Reactions = append(resp.Reactions, dto.ReactionResponse{
			UserID: r.UserID,
			Type:   r.Type,
			Glyph:  r.Glyph,
		})
	}

	return resp
}

func messageToPayload(message *model.Message, updated bool) event.MessagePayload {
	payload := event.MessagePayload{
		Updated:            updated,
		ID:                 message.ID,
		ConversationID:     message.ConversationID,
		SenderID:           message.SenderID,
		Type:               message.Type,
		Content:            message.Content,
		CreatedAt:          message.CreatedAt,
		UpdatedAt:          message.UpdatedAt,
		DeletedAt:          message.DeletedAt,
		DeletedForEveryone: message.DeletedForEveryone,
	}

	if message.Image != nil {
		payload.Image = &event.Image{
			FileID: message.Image.FileID,
			URL:    message.Image.URL,
			Size:   message.Image.Size,
			Width:  message.Image.Width,
			Height: message.Image.Height,
		}
	}

	return payload
}

// insert writes the message and its payload row and bumps the conversation
// activity in one transaction. Members who had hidden the conversation see
// it again and are told so on their user topic.
func (s *MessageService) insert(ctx context.Context, conversationID, senderID uint, content *dto.MessageContent) (*model.Message, error) {
	message := model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           content.Type,
		Content:        content.Content,
	}

	var resurfaced []uint
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Member{}).
			Where("conversation_id = ? AND user_id <> ? AND hidden_at IS NOT NULL", conversationID, senderID).
			Where("NOT EXISTS (SELECT 1 FROM messages WHERE messages.conversation_id = members.conversation_id AND messages.created_at > members.hidden_at)").
			Pluck("user_id", &resurfaced).Error
		if err != nil {
			return err
		}

		if err := gorm.G[model.Message](tx).Create(ctx, &message); err != nil {
			return err
		}

		if content.Type == model.MessageTypeImage && content.Image != nil {
			message.Image = &model.MessageImage{
				MessageID: message.ID,
				FileID:    content.Image.ID,
				URL:       content.Image.URL,
				Size:      content.Image.Size,
				Width:     content.Image.Width,
				Height:    content.Image.Height,
			}
			if err := gorm.G[model.MessageImage](tx).Create(ctx, message.Image); err != nil {
				return err
			}
		}

		_, err = gorm.G[model.Conversation](tx).Where("id = ?", conversationID).Update(ctx, "last_message_at", message.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.Dep, event.ConversationTopic(conversationID), senderID, messageToPayload(&message, false))
	s.Conversations.announce(ctx, senderID, conversationID, false, resurfaced)

	return &message, nil
}

// SendPrivateMessage opens the private conversation on first contact.
func (s *MessageService) SendPrivateMessage(ctx context.Context, senderID uint, request *dto.SendPrivateMessageRequest) (*dto.MessageResponse, error) {
	receiverID := request.ReceiverID
	if receiverID == senderID {
		return nil, chatError.NotAllowed("cannot message yourself")
	}

	exists, err := userExists(ctx, s.Dep.DB, receiverID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, chatError.ErrReceiverNotFound
	}

	blocked, err := isBlocked(ctx, s.Dep.DB, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, chatError.ErrSenderBlocked
	}

	friends, err := areFriends(ctx, s.Dep.DB, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, chatError.ErrFriendshipNotFound
	}

	conversation, _, err := s.Conversations.findOrCreatePrivate(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	message, err := s.insert(ctx, conversation.ID, senderID, &request.MessageContent)
	if err != nil {
		return nil, err
	}

	resp := messageToResponse(message, nil, false)
	return &resp, nil
}

func (s *MessageService) SendGroupMessage(ctx context.Context, senderID, conversationID uint, request *dto.SendGroupMessageRequest) (*dto.MessageResponse, error) {
	conversation, err := gorm.G[model.Conversation](s.Dep.DB).Where("id = ?", conversationID).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chatError.NotFound("conversation not found")
		}
		return nil, err
	}
	if !conversation.IsGroup {
		return nil, chatError.NotAllowed("not a group conversation")
	}

	if _, err := requireMember(ctx, s.Dep.DB, conversationID, senderID); err != nil {
		return nil, err
	}

	message, err := s.insert(ctx, conversationID, senderID, &request.MessageContent)
	if err != nil {
		return nil, err
	}

	resp := messageToResponse(message, nil, false)
	return &resp, nil
}

// loadForMember returns the message if the user is a member of its
// conversation.
func (s *MessageService) loadForMember(ctx context.Context, messageID, userID uint) (*model.Message, *model.Conversation, *model.Member, error) {
	message, err := gorm.G[model.Message](s.Dep.DB).
		Preload("Image", nil).
		Preload("Conversation", nil).
		Where("id = ?", messageID).
		First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, chatError.NotFound("message not found")
		}
		return nil, nil, nil, err
	}

	member, err := requireMember(ctx, s.Dep.DB, message.ConversationID, userID)
	if err != nil {
		return nil, nil, nil, err
	}

	return &message, &message.Conversation, member, nil
}

// canModerate is the author, or an admin of a group.
func canModerate(message *model.Message, conversation *model.Conversation, member *model.Member) bool {
	if message.SenderID == member.UserID {
		return true
	}
	return conversation.IsGroup && member.Role == model.RoleAdmin
}

func (s *MessageService) EditMessage(ctx context.Context, actorID, messageID uint, request *dto.EditMessageRequest) (*dto.MessageResponse, error) {
	message, conversation, member, err := s.loadForMember(ctx, messageID, actorID)
	if err != nil {
		return nil, err
	}
	if !canModerate(message, conversation, member) {
		return nil, chatError.NotAllowed("cannot edit this message")
	}
	if message.DeletedForEveryone || message.Type != model.MessageTypeText {
		return nil, chatError.NotAllowed("only live text messages can be edited")
	}

	now := model.NowUTC()
	err = s.Dep.DB.WithContext(ctx).Model(&model.Message{}).Where("id = ?", messageID).UpdateColumns(map[string]any{
		"content":    request.Content,
		"updated_at": now,
	}).Error
	if err != nil {
		return nil, err
	}
	message.Content = request.Content
	message.UpdatedAt = now

	publish(ctx, s.Dep, event.ConversationTopic(message.ConversationID), actorID, messageToPayload(message, true))

	return s.single(ctx, messageID, member)
}

// DeleteMessage for everyone tombstones the message for all members; for
// me it only hides it from the caller and broadcasts nothing.
func (s *MessageService) DeleteMessage(ctx context.Context, actorID, messageID uint, forEveryone bool) error {
	message, conversation, member, err := s.loadForMember(ctx, messageID, actorID)
	if err != nil {
		return err
	}

	if !forEveryone {
		return s.Dep.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model.MessageHidden{
			MessageID: messageID,
			UserID:    actorID,
		}).Error
	}

	if !canModerate(message, conversation, member) {
		return chatError.NotAllowed("cannot delete this message for everyone")
	}
	if message.DeletedForEveryone {
		return nil
	}

	now := model.NowUTC()
	err = s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Message{}).Where("id = ?", messageID).UpdateColumns(map[string]any{
			"content":              "",
			"deleted_at":           now,
			"deleted_for_everyone": true,
			"updated_at":           now,
		}).Error
		if err != nil {
			return err
		}

		_, err = gorm.G[model.MessageImage](tx).Where("message_id = ?", messageID).Delete(ctx)
		return err
	})
	if err != nil {
		return err
	}

	message.Content = ""
	message.DeletedAt = &now
	message.DeletedForEveryone = true
	message.UpdatedAt = now
	message.Image = nil

	publish(ctx, s.Dep, event.ConversationTopic(message.ConversationID), actorID, messageToPayload(message, true))

	return nil
}

// seenByMembers maps message id to the sorted ids of members who saw it.
func seenByMembers(ctx context.Context, tx *gorm.DB, messageIDs []uint) (map[uint][]uint, error) {
	out := make(map[uint][]uint, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	statuses, err := gorm.G[model.SeenStatus](tx).
		Where("message_id IN ?", messageIDs).
		Order("message_id ASC, member_id ASC").
		Find(ctx)
	if err != nil {
		return nil, err
	}

	for _, st := range statuses {
		out[st.MessageID] = append(out[st.MessageID], st.MemberID)
	}
	return out, nil
}

func starredByUser(ctx context.Context, tx *gorm.DB, userID uint, messageIDs []uint) (map[uint]bool, error) {
	out := make(map[uint]bool, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	stars, err := gorm.G[model.Starred](tx).Where("user_id = ? AND message_id IN ?", userID, messageIDs).Find(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range stars {
		out[st.MessageID] = true
	}
	return out, nil
}

func (s *MessageService) decorate(ctx context.Context, messages []model.Message, userID uint) ([]dto.MessageResponse, error) {
	ids := make([]uint, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}

	seen, err := seenByMembers(ctx, s.Dep.DB, ids)
	if err != nil {
		return nil, err
	}
	starred, err := starredByUser(ctx, s.Dep.DB, userID, ids)
	if err != nil {
		return nil, err
	}

	items := make([]dto.MessageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, messageToResponse(&messages[i], seen[messages[i].ID], starred[messages[i].ID]))
	}
	return items, nil
}

func (s *MessageService) single(ctx context.Context, messageID uint, member *model.Member) (*dto.MessageResponse, error) {
	var messages []model.Message
	err := s.Dep.DB.WithContext(ctx).Preload("Image").Preload("Reactions").Where("id = ?", messageID).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, chatError.NotFound("message not found")
	}

	items, err := s.decorate(ctx, messages, member.UserID)
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ListMessages pages newest first through what the caller may still read.
func (s *MessageService) ListMessages(ctx context.Context, userID, conversationID uint, q *dto.PageQuery) (*dto.Page[dto.MessageResponse], error) {
	page := normalizePage(s.Dep, *q)

	me, err := requireMember(ctx, s.Dep.DB, conversationID, userID)
	if err != nil {
		return nil, err
	}

	tx := visibleMessages(s.Dep.DB.WithContext(ctx), conversationID, me).Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var messages []model.Message
	err = tx.Preload("Image").Preload("Reactions", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	items, err := s.decorate(ctx, messages, userID)
	if err != nil {
		return nil, err
	}

	res := dto.NewPage(items, page, total)
	return &res, nil
}
