package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// visibleToMember is the hide/resurrect rule: a hidden conversation shows
// again once a message newer than the hide exists.
const visibleToMember = `(members.hidden_at IS NULL OR EXISTS (
	SELECT 1 FROM messages
	WHERE messages.conversation_id = conversations.id AND messages.created_at > members.hidden_at))`

type ConversationService struct {
	Dep      *dependency.Dependency
	Presence *PresenceService
}

func NewConversationService(dep *dependency.Dependency, presence *PresenceService) *ConversationService {
	requireDB(dep, "ConversationService")

	return &ConversationService{
		Dep:      dep,
		Presence: presence,
	}
}

// PairKey orders the two ids so both sides map to the same private
// conversation.
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

func requireMember(ctx context.Context, tx *gorm.DB, conversationID, userID uint) (*model.Member, error) {
	member, err := gorm.G[model.Member](tx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chatError.ErrNotGroupMember
		}
		return nil, err
	}
	return &member, nil
}

// requireAdmin also rejects private conversations, which have no admin.
func requireAdmin(ctx context.Context, tx *gorm.DB, conversationID, userID uint) (*model.Conversation, *model.Member, error) {
	conversation, err := gorm.G[model.Conversation](tx).Where("id = ?", conversationID).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, chatError.NotFound("conversation not found")
		}
		return nil, nil, err
	}
	if !conversation.IsGroup {
		return nil, nil, chatError.NotAllowed("not a group conversation")
	}

	member, err := requireMember(ctx, tx, conversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	if member.Role != model.RoleAdmin {
		return nil, nil, chatError.NotAllowed("only a group admin can do this")
	}

	return &conversation, member, nil
}

func memberUserIDs(ctx context.Context, tx *gorm.DB, conversationID uint) ([]uint, error) {
	var ids []uint
	err := tx.WithContext(ctx).Model(&model.Member{}).Where("conversation_id = ?", conversationID).Pluck("user_id", &ids).Error
	return ids, err
}

// ConversationIDsOf lists every conversation the user belongs to, hidden
// ones included, since a hidden conversation still receives messages.
func (s *ConversationService) ConversationIDsOf(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := s.Dep.DB.WithContext(ctx).Model(&model.Member{}).Where("user_id = ?", userID).Pluck("conversation_id", &ids).Error
	return ids, err
}

func (s *ConversationService) IsMember(ctx context.Context, conversationID, userID uint) (bool, error) {
	count, err := gorm.G[model.Member](s.Dep.DB).Where("conversation_id = ? AND user_id = ?", conversationID, userID).Count(ctx, "*")
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// friendsOfAll reports whether every id is a friend of userID.
func friendsOfAll(ctx context.Context, tx *gorm.DB, userID uint, ids []uint) (bool, error) {
	count, err := gorm.G[model.Friend](tx).Where("user_id = ? AND friend_id IN ?", userID, ids).Count(ctx, "*")
	if err != nil {
		return false, err
	}
	return count == int64(len(ids)), nil
}

func (s *ConversationService) announce(ctx context.Context, actorID, conversationID uint, created bool, userIDs []uint) {
	ev := event.ConversationChanged{Created: created, ConversationID: conversationID}
	for _, id := range userIDs {
		publish(ctx, s.Dep, event.UserTopic(id), actorID, ev)
	}
}

// findOrCreatePrivate assumes the caller already checked friendship and
// blocks. Two racing creators both end up with the row that won the
// pair-key unique index.
func (s *ConversationService) findOrCreatePrivate(ctx context.Context, a, b uint) (*model.Conversation, bool, error) {
	key := PairKey(a, b)

	existing, err := gorm.G[model.Conversation](s.Dep.DB).Where("pair_key = ?", key).First(ctx)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	now := model.NowUTC()
	conversation := model.Conversation{
		IsGroup:   false,
		CreatedBy: a,
		PairKey:   &key,
	}

	err = s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := gorm.G[model.Conversation](tx).Create(ctx, &conversation); err != nil {
			return err
		}

		members := []model.Member{
			{ConversationID: conversation.ID, UserID: a, Role: model.RoleMember, JoinedAt: now},
			{ConversationID: conversation.ID, UserID: b, Role: model.RoleMember, JoinedAt: now},
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, err := gorm.G[model.Conversation](s.Dep.DB).Where("pair_key = ?", key).First(ctx)
			if err != nil {
				return nil, false, err
			}
			return &winner, false, nil
		}
		return nil, false, err
	}

	s.announce(ctx, a, conversation.ID, true, []uint{a, b})

	return &conversation, true, nil
}

// FindOrCreatePrivate opens the one private conversation between two
// friends.
func (s *ConversationService) FindOrCreatePrivate(ctx context.Context, userID, otherID uint) (*dto.ConversationOverviewResponse, error) {
	if userID == otherID {
		return nil, chatError.NotAllowed("cannot open a conversation with yourself")
	}

	exists, err := userExists(ctx, s.Dep.DB, otherID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, chatError.NotFound("user not found")
	}

	blocked, err := isBlocked(ctx, s.Dep.DB, userID, otherID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, chatError.ErrBlocked
	}

	friends, err := areFriends(ctx, s.Dep.DB, userID, otherID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, chatError.ErrFriendshipNotFound
	}

	conversation, _, err := s.findOrCreatePrivate(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}

	return s.Overview(ctx, conversation.ID, userID)
}

// insertSystemMessage records a membership change in the timeline.
func insertSystemMessage(ctx context.Context, tx *gorm.DB, conversationID, actorID uint, content string) (*model.Message, error) {
	message := model.Message{
		ConversationID: conversationID,
		SenderID:       actorID,
		Type:           model.MessageTypeSystem,
		Content:        content,
	}
	if err := gorm.G[model.Message](tx).Create(ctx, &message); err != nil {
		return nil, err
	}

	_, err := gorm.G[model.Conversation](tx).Where("id = ?", conversationID).Update(ctx, "last_message_at", message.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

func (s *ConversationService) publishMessage(ctx context.Context, actorID uint, message *model.Message) {
	if message == nil {
		return
	}
	publish(ctx, s.Dep, event.ConversationTopic(message.ConversationID), actorID, messageToPayload(message, false))
}

func (s *ConversationService) CreateGroup(ctx context.Context, creatorID uint, request *dto.CreateGroupRequest) (*dto.ConversationOverviewResponse, error) {
	memberIDs := uniqueIDs(request.MemberIDs, creatorID)
	if len(memberIDs) == 0 {
		return nil, chatError.ErrInvalidMembers
	}

	name := request.Name
	conversation := model.Conversation{
		IsGroup:     true,
		CreatedBy:   creatorID,
		Name:        &name,
		Description: request.Description,
		Icon:        request.Icon,
	}

	var created *model.Message
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := friendsOfAll(ctx, tx, creatorID, memberIDs)
		if err != nil {
			return err
		}
		if !ok {
			return chatError.ErrInvalidMembers
		}

		if err := gorm.G[model.Conversation](tx).Create(ctx, &conversation); err != nil {
			return err
		}

		now := model.NowUTC()
		members := make([]model.Member, 0, len(memberIDs)+1)
		members = append(members, model.Member{ConversationID: conversation.ID, UserID: creatorID, Role: model.RoleAdmin, JoinedAt: now})
		for _, id := range memberIDs {
			members = append(members, model.Member{ConversationID: conversation.ID, UserID: id, Role: model.RoleMember, JoinedAt: now})
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}

		created, err = insertSystemMessage(ctx, tx, conversation.ID, creatorID, "created the group")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, creatorID, conversation.ID, true, append([]uint{creatorID}, memberIDs...))
	s.publishMessage(ctx, creatorID, created)

	return s.Overview(ctx, conversation.ID, creatorID)
}

func (s *ConversationService) UpdateGroup(ctx context.Context, actorID, conversationID uint, request *dto.UpdateGroupRequest) (*dto.ConversationOverviewResponse, error) {
	if _, _, err := requireAdmin(ctx, s.Dep.DB, conversationID, actorID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if request.Name != nil {
		updates["name"] = *request.Name
	}
	if request.Description != nil {
		updates["description"] = *request.Description
	}
	if request.Icon != nil {
		updates["icon"] = *request.Icon
	}

	if len(updates) > 0 {
		err := s.Dep.DB.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", conversationID).Updates(updates).Error
		if err != nil {
			return nil, err
		}

		publish(ctx, s.Dep, event.ConversationTopic(conversationID), actorID, event.ConversationChanged{ConversationID: conversationID})
	}

	return s.Overview(ctx, conversationID, actorID)
}

// AddMembers adds friends of the admin. Existing members are skipped.
func (s *ConversationService) AddMembers(ctx context.Context, actorID, conversationID uint, request *dto.AddMembersRequest) (*dto.ConversationOverviewResponse, error) {
	ids := uniqueIDs(request.MemberIDs, actorID)
	if len(ids) == 0 {
		return nil, chatError.ErrInvalidMembers
	}

	var (
		added   []uint
		message *model.Message
	)
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := requireAdmin(ctx, tx, conversationID, actorID); err != nil {
			return err
		}

		ok, err := friendsOfAll(ctx, tx, actorID, ids)
		if err != nil {
			return err
		}
		if !ok {
			return chatError.ErrInvalidMembers
		}

		existing, err := memberUserIDs(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		present := make(map[uint]struct{}, len(existing))
		for _, id := range existing {
			present[id] = struct{}{}
		}

		now := model.NowUTC()
		var members []model.Member
		for _, id := range ids {
			if _, ok := present[id]; ok {
				continue
			}
			members = append(members, model.Member{ConversationID: conversationID, UserID: id, Role: model.RoleMember, JoinedAt: now})
			added = append(added, id)
		}
		if len(members) == 0 {
			return nil
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error; err != nil {
			return err
		}

		message, err = insertSystemMessage(ctx, tx, conversationID, actorID, fmt.Sprintf("added %d member(s)", len(members)))
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(added) > 0 {
		s.announce(ctx, actorID, conversationID, true, added)
		publish(ctx, s.Dep, event.ConversationTopic(conversationID), actorID, event.ConversationChanged{ConversationID: conversationID})
		s.publishMessage(ctx, actorID, message)
	}

	return s.Overview(ctx, conversationID, actorID)
}

func (s *ConversationService) RemoveMember(ctx context.Context, actorID, conversationID, userID uint) error {
	if actorID == userID {
		return chatError.NotAllowed("use leave to remove yourself")
	}

	var message *model.Message
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := requireAdmin(ctx, tx, conversationID, actorID); err != nil {
			return err
		}

		rows, err := gorm.G[model.Member](tx).Where("conversation_id = ? AND user_id = ?", conversationID, userID).Delete(ctx)
		if err != nil {
			return err
		}
		if rows == 0 {
			return chatError.NotFound("member not found")
		}

		message, err = insertSystemMessage(ctx, tx, conversationID, actorID, "removed a member")
		return err
	})
	if err != nil {
		return err
	}

	s.announce(ctx, actorID, conversationID, false, []uint{userID})
	publish(ctx, s.Dep, event.ConversationTopic(conversationID), actorID, event.ConversationChanged{ConversationID: conversationID})
	s.publishMessage(ctx, actorID, message)

	return nil
}

// Hide only touches the caller's own membership row.
func (s *ConversationService) Hide(ctx context.Context, conversationID, userID uint) error {
	member, err := requireMember(ctx, s.Dep.DB, conversationID, userID)
	if err != nil {
		return err
	}

	_, err = gorm.G[model.Member](s.Dep.DB).Where("id = ?", member.ID).Update(ctx, "hidden_at", model.NowUTC())
	return err
}

// Clear moves the caller's history cut-off to now. Messages that every
// member has cleared are removed for good.
func (s *ConversationService) Clear(ctx context.Context, conversationID, userID uint) error {
	return s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := requireMember(ctx, tx, conversationID, userID)
		if err != nil {
			return err
		}

		if _, err := gorm.G[model.Member](tx).Where("id = ?", member.ID).Update(ctx, "cleared_at", model.NowUTC()); err != nil {
			return err
		}

		var members []model.Member
		if err := tx.Where("conversation_id = ?", conversationID).Find(&members).Error; err != nil {
			return err
		}

		var cutoff *model.Member
		for i := range members {
			if members[i].ClearedAt == nil {
				return nil
			}
			if cutoff == nil || members[i].ClearedAt.Before(*cutoff.ClearedAt) {
				cutoff = &members[i]
			}
		}
		if cutoff == nil {
			return nil
		}

		return purgeMessages(tx, "conversation_id = ? AND created_at <= ?", conversationID, *cutoff.ClearedAt)
	})
}

// purgeMessages hard-deletes the matching messages with everything that
// hangs off them.
func purgeMessages(tx *gorm.DB, query string, args ...any) error {
	dependants := []any{
		&model.Starred{},
		&model.Reaction{},
		&model.SeenStatus{},
		&model.MessageHidden{},
		&model.MessageImage{},
	}
	for _, dependant := range dependants {
		ids := tx.Session(&gorm.Session{NewDB: true}).Model(&model.Message{}).Select("id").Where(query, args...)
		if err := tx.Where("message_id IN (?)", ids).Delete(dependant).Error; err != nil {
			return err
		}
	}

	return tx.Where(query, args...).Delete(&model.Message{}).Error
}

// LeaveGroup removes the caller. The oldest remaining member takes over
// when the last admin leaves; an empty group is deleted.
func (s *ConversationService) LeaveGroup(ctx context.Context, conversationID, userID uint) error {
	var (
		remaining []uint
		message   *model.Message
	)
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conversation, err := gorm.G[model.Conversation](tx).Where("id = ?", conversationID).First(ctx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chatError.NotFound("conversation not found")
			}
			return err
		}
		if !conversation.IsGroup {
			return chatError.NotAllowed("cannot leave a private conversation")
		}

		member, err := requireMember(ctx, tx, conversationID, userID)
		if err != nil {
			return err
		}

		if _, err := gorm.G[model.Member](tx).Where("id = ?", member.ID).Delete(ctx); err != nil {
			return err
		}

		rest, err := gorm.G[model.Member](tx).Where("conversation_id = ?", conversationID).Order("joined_at ASC, id ASC").Find(ctx)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return deleteConversation(tx, conversationID)
		}

		hasAdmin := false
		for _, m := range rest {
			remaining = append(remaining, m.UserID)
			if m.Role == model.RoleAdmin {
				hasAdmin = true
			}
		}
		if !hasAdmin {
			if _, err := gorm.G[model.Member](tx).Where("id = ?", rest[0].ID).Update(ctx, "role", model.RoleAdmin); err != nil {
				return err
			}
		}

		message, err = insertSystemMessage(ctx, tx, conversationID, userID, "left the group")
		return err
	})
	if err != nil {
		return err
	}

	s.announce(ctx, userID, conversationID, false, []uint{userID})
	if len(remaining) > 0 {
		publish(ctx, s.Dep, event.ConversationTopic(conversationID), userID, event.ConversationChanged{ConversationID: conversationID})
		s.publishMessage(ctx, userID, message)
	}

	return nil
}

func deleteConversation(tx *gorm.DB, conversationID uint) error {
	if err := purgeMessages(tx, "conversation_id = ?", conversationID); err != nil {
		return err
	}
	if err := tx.Where("conversation_id = ?", conversationID).Delete(&model.Member{}).Error; err != nil {
		return err
	}
	return tx.Where("id = ?", conversationID).Delete(&model.Conversation{}).Error
}

// DeleteGroup is open to the creator and to admins.
func (s *ConversationService) DeleteGroup(ctx context.Context, conversationID, actorID uint) error {
	var former []uint
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		conversation, err := gorm.G[model.Conversation](tx).Where("id = ?", conversationID).First(ctx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chatError.NotFound("conversation not found")
			}
			return err
		}
		if !conversation.IsGroup {
			return chatError.NotAllowed("not a group conversation")
		}

		member, err := requireMember(ctx, tx, conversationID, actorID)
		if err != nil {
			return err
		}
		if conversation.CreatedBy != actorID && member.Role != model.RoleAdmin {
			return chatError.NotAllowed("only the creator or an admin can delete the group")
		}

		former, err = memberUserIDs(ctx, tx, conversationID)
		if err != nil {
			return err
		}

		return deleteConversation(tx, conversationID)
	})
	if err != nil {
		return err
	}

	s.announce(ctx, actorID, conversationID, false, former)

	return nil
}

// conversationToResponse fills in the per-viewer parts: peer, last visible
// message and unread count.
func (s *ConversationService) conversationToResponse(ctx context.Context, conversation *model.Conversation, me *model.Member) (*dto.ConversationResponse, error) {
	resp := &dto.ConversationResponse{
		ID:          conversation.ID,
		IsGroup:     conversation.IsGroup,
		Name:        conversation.Name,
		Description: conversation.Description,
		Icon:        conversation.Icon,
		CreatedBy:   conversation.CreatedBy,
		CreatedAt:   conversation.CreatedAt,
		UpdatedAt:   conversation.UpdatedAt,
	}

	if !conversation.IsGroup {
		peer, err := gorm.G[model.User](s.Dep.DB).
			Where("id IN (?)", s.Dep.DB.Model(&model.Member{}).Select("user_id").Where("conversation_id = ? AND user_id <> ?", conversation.ID, me.UserID)).
			First(ctx)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			resp.Peer = userToSimpleUser(&peer)
		}
	}

	var last []model.Message
	err := visibleMessages(s.Dep.DB.WithContext(ctx), conversation.ID, me).
		Preload("Image").
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return nil, err
	}
	if len(last) == 1 {
		msg := messageToResponse(&last[0], nil, false)
		resp.LastMessage = &msg
	}

	err = visibleMessages(s.Dep.DB.WithContext(ctx), conversation.ID, me).
		Where("messages.sender_id <> ? AND messages.type <> ?", me.UserID, model.MessageTypeSystem).
		Where("NOT EXISTS (SELECT 1 FROM seen_statuses WHERE seen_statuses.message_id = messages.id AND seen_statuses.member_id = ?)", me.ID).
		Count(&resp.UnreadCount).Error
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// visibleMessages scopes messages to what one member may read: after the
// member's clear point and not deleted for them.
func visibleMessages(tx *gorm.DB, conversationID uint, me *model.Member) *gorm.DB {
	q := tx.Model(&model.Message{}).
		Where("messages.conversation_id = ?", conversationID).
		Where("NOT EXISTS (SELECT 1 FROM message_hiddens WHERE message_hiddens.message_id = messages.id AND message_hiddens.user_id = ?)", me.UserID)
	if me.ClearedAt != nil {
		q = q.Where("messages.created_at > ?", *me.ClearedAt)
	}
	return q
}

func (s *ConversationService) ListConversations(ctx context.Context, userID uint, q *dto.ConversationListQuery) (*dto.Page[dto.ConversationResponse], error) {
	page := normalizePage(s.Dep, q.PageQuery)

	tx := s.Dep.DB.WithContext(ctx).Model(&model.Conversation{}).
		Joins("JOIN members ON members.conversation_id = conversations.id AND members.user_id = ?", userID).
		Where(visibleToMember)
	if q.GroupOnly {
		tx = tx.Where("conversations.is_group = ?", true)
	}
	if q.IncludeUnreadOnly {
		tx = tx.Where(`EXISTS (SELECT 1 FROM messages
			WHERE messages.conversation_id = conversations.id AND messages.sender_id <> members.user_id AND messages.type <> ?
			AND (members.cleared_at IS NULL OR messages.created_at > members.cleared_at)
			AND NOT EXISTS (SELECT 1 FROM message_hiddens WHERE message_hiddens.message_id = messages.id AND message_hiddens.user_id = members.user_id)
			AND NOT EXISTS (SELECT 1 FROM seen_statuses WHERE seen_statuses.message_id = messages.id AND seen_statuses.member_id = members.id))`,
			model.MessageTypeSystem)
	}
	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var conversations []model.Conversation
	err := tx.Select("conversations.*").
		Order("COALESCE(conversations.last_message_at, conversations.created_at) DESC, conversations.id DESC").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}

	items := make([]dto.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		me, err := requireMember(ctx, s.Dep.DB, conversations[i].ID, userID)
		if err != nil {
			return nil, err
		}
		resp, err := s.conversationToResponse(ctx, &conversations[i], me)
		if err != nil {
			return nil, err
		}
		items = append(items, *resp)
	}

	res := dto.NewPage(items, page, total)
	return &res, nil
}

// Overview is the conversation with its member list.
func (s *ConversationService) Overview(ctx context.Context, conversationID, userID uint) (*dto.ConversationOverviewResponse, error) {
	me, err := requireMember(ctx, s.Dep.DB, conversationID, userID)
	if err != nil {
		return nil, err
	}

	conversation, err := gorm.G[model.Conversation](s.Dep.DB).Where("id = ?", conversationID).First(ctx)
	if err != nil {
		return nil, err
	}

	members, err := gorm.G[model.Member](s.Dep.DB).
		Preload("User", nil).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC, id ASC").
		Find(ctx)
	if err != nil {
		return nil, err
	}

	checker, err := s.Presence.onlineChecker(ctx)
	if err != nil {
		return nil, err
	}

	base, err := s.conversationToResponse(ctx, &conversation, me)
	if err != nil {
		return nil, err
	}

	resp := &dto.ConversationOverviewResponse{
		ConversationResponse: *base,
		MyMemberID:           me.ID,
		MyRole:               me.Role,
		Members:              make([]dto.MemberResponse, 0, len(members)),
	}
	for _, m := range members {
		resp.Members = append(resp.Members, dto.MemberResponse{
			ID:       m.ID,
			User:     *userToSimpleUser(&m.User),
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
			Online:   checker.isOnline(m.UserID),
		})
	}

	return resp, nil
}
