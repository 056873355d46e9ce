package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/notify"
)

// Direction is how a friend request looks to one viewer. It is derived on
// read and never stored.
type Direction int

const (
	DirectionIncoming Direction = iota
	DirectionOutgoing
)

func (d Direction) String() string {
	if d == DirectionOutgoing {
		return dto.RequestTypeOutgoing
	}
	return dto.RequestTypeIncoming
}

// Classify is outgoing iff the viewer sent the request.
func Classify(request *model.FriendRequest, viewerID uint) Direction {
	if request.SenderID == viewerID {
		return DirectionOutgoing
	}
	return DirectionIncoming
}

// RelationshipService owns friend requests, friendships and blocks.
// Friendship rows only ever change in pairs inside one transaction.
type RelationshipService struct {
	Dep      *dependency.Dependency
	Presence *PresenceService
}

func NewRelationshipService(dep *dependency.Dependency, presence *PresenceService) *RelationshipService {
	requireDB(dep, "RelationshipService")

	return &RelationshipService{
		Dep:      dep,
		Presence: presence,
	}
}

func friendRequestToResponse(request *model.FriendRequest, viewerID uint) dto.FriendRequestResponse {
	return dto.FriendRequestResponse{
		ID:        request.ID,
		Sender:    *userToSimpleUser(&request.Sender),
		Receiver:  *userToSimpleUser(&request.Receiver),
		Status:    request.Status,
		Direction: Classify(request, viewerID).String(),
		CreatedAt: request.CreatedAt,
		UpdatedAt: request.UpdatedAt,
	}
}

func (s *RelationshipService) loadRequest(ctx context.Context, requestID uint) (*model.FriendRequest, error) {
	request, err := gorm.G[model.FriendRequest](s.Dep.DB).
		Preload("Sender", nil).
		Preload("Receiver", nil).
		Where("id = ?", requestID).
		First(ctx)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (s *RelationshipService) SendRequest(ctx context.Context, senderID, receiverID uint) (*dto.FriendRequestResponse, error) {
	if senderID == receiverID {
		return nil, chatError.NotAllowed("cannot send a friend request to yourself")
	}

	request := model.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     model.FriendRequestPending,
	}

	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := userExists(ctx, tx, receiverID)
		if err != nil {
			return err
		}
		if !exists {
			return chatError.NotFound("user not found")
		}

		blocked, err := isBlocked(ctx, tx, senderID, receiverID)
		if err != nil {
			return err
		}
		if blocked {
			return chatError.ErrBlocked
		}

		friends, err := areFriends(ctx, tx, senderID, receiverID)
		if err != nil {
			return err
		}
		if friends {
			return chatError.ErrAlreadyFriends
		}

		// The partial unique index catches the concurrent duplicate.
		if err := gorm.G[model.FriendRequest](tx).Create(ctx, &request); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return chatError.ErrDuplicatePending
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.Dep, event.UserTopic(receiverID), senderID, event.FriendRequestChanged{
		Change:    event.KindIncomingFriendRequest,
		RequestID: request.ID,
	})

	loaded, err := s.loadRequest(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	notify.SendAsync(s.Dep.Mailer, s.Dep.Logger, notify.Mail{
		From:    s.Dep.Cfg.MailFrom,
		To:      loaded.Receiver.Username,
		Subject: "New friend request",
		Body:    fmt.Sprintf("%s sent you a friend request.", loaded.Sender.Username),
	})

	resp := friendRequestToResponse(loaded, senderID)
	return &resp, nil
}

// resolve moves a pending request addressed to actorID into a terminal
// state. Only a pending row can move, so a decided request is NotFound.
func (s *RelationshipService) resolve(ctx context.Context, requestID, actorID uint, status string) (*model.FriendRequest, error) {
	var request model.FriendRequest

	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		request, err = gorm.G[model.FriendRequest](tx).
			Where("id = ? AND receiver_id = ? AND status = ?", requestID, actorID, model.FriendRequestPending).
			First(ctx)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return chatError.NotFound("friend request not found")
			}
			return err
		}

		rows, err := gorm.G[model.FriendRequest](tx).
			Where("id = ? AND status = ?", requestID, model.FriendRequestPending).
			Update(ctx, "status", status)
		if err != nil {
			return err
		}
		if rows == 0 {
			return chatError.NotFound("friend request not found")
		}

		if status != model.FriendRequestAccepted {
			return nil
		}

		// A crossing request from the other side is settled by this one.
		_, err = gorm.G[model.FriendRequest](tx).
			Where("sender_id = ? AND receiver_id = ? AND status = ?", request.ReceiverID, request.SenderID, model.FriendRequestPending).
			Delete(ctx)
		if err != nil {
			return err
		}

		pair := []model.Friend{
			{UserID: request.SenderID, FriendID: request.ReceiverID},
			{UserID: request.ReceiverID, FriendID: request.SenderID},
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pair).Error
	})
	if err != nil {
		return nil, err
	}

	return s.loadRequest(ctx, request.ID)
}

func (s *RelationshipService) Accept(ctx context.Context, requestID, actorID uint) (*dto.FriendRequestResponse, error) {
	request, err := s.resolve(ctx, requestID, actorID, model.FriendRequestAccepted)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.Dep, event.UserTopic(request.SenderID), actorID, event.FriendRequestChanged{
		Change:    event.KindAcceptFriendRequest,
		RequestID: request.ID,
	})

	resp := friendRequestToResponse(request, actorID)
	return &resp, nil
}

func (s *RelationshipService) Reject(ctx context.Context, requestID, actorID uint) (*dto.FriendRequestResponse, error) {
	request, err := s.resolve(ctx, requestID, actorID, model.FriendRequestRejected)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.Dep, event.UserTopic(request.SenderID), actorID, event.FriendRequestChanged{
		Change:    event.KindRejectFriendRequest,
		RequestID: request.ID,
	})

	resp := friendRequestToResponse(request, actorID)
	return &resp, nil
}

// Cancel lets the sender withdraw a pending request.
func (s *RelationshipService) Cancel(ctx context.Context, requestID, actorID uint) error {
	request, err := gorm.G[model.FriendRequest](s.Dep.DB).
		Where("id = ? AND sender_id = ? AND status = ?", requestID, actorID, model.FriendRequestPending).
		First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chatError.NotFound("friend request not found")
		}
		return err
	}

	rows, err := gorm.G[model.FriendRequest](s.Dep.DB).
		Where("id = ? AND status = ?", requestID, model.FriendRequestPending).
		Delete(ctx)
	if err != nil {
		return err
	}
	if rows == 0 {
		return chatError.NotFound("friend request not found")
	}

	publish(ctx, s.Dep, event.UserTopic(request.ReceiverID), actorID, event.FriendRequestChanged{
		Change:    event.KindDeleteFriendRequest,
		RequestID: request.ID,
	})

	return nil
}

func (s *RelationshipService) ListFriendRequests(ctx context.Context, userID uint, q *dto.FriendRequestListQuery) (*dto.Page[dto.FriendRequestResponse], error) {
	page := normalizePage(s.Dep, q.PageQuery)

	tx := s.Dep.DB.WithContext(ctx).Model(&model.FriendRequest{}).Where("status = ?", model.FriendRequestPending)
	switch q.Type {
	case dto.RequestTypeIncoming:
		tx = tx.Where("receiver_id = ?", userID)
	case dto.RequestTypeOutgoing:
		tx = tx.Where("sender_id = ?", userID)
	default:
		tx = tx.Where("sender_id = ? OR receiver_id = ?", userID, userID)
	}

	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var requests []model.FriendRequest
	err := tx.Preload("Sender").Preload("Receiver").
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}

	items := make([]dto.FriendRequestResponse, 0, len(requests))
	for i := range requests {
		items = append(items, friendRequestToResponse(&requests[i], userID))
	}

	res := dto.NewPage(items, page, total)
	return &res, nil
}

// Block removes the friendship and every pending request between the pair
// and records the block, all at once. Messages stay.
func (s *RelationshipService) Block(ctx context.Context, blockerID, blockedID uint) error {
	if blockerID == blockedID {
		return chatError.NotAllowed("cannot block yourself")
	}

	var dropped []model.FriendRequest
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := userExists(ctx, tx, blockedID)
		if err != nil {
			return err
		}
		if !exists {
			return chatError.NotFound("user not found")
		}

		_, err = gorm.G[model.Friend](tx).
			Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", blockerID, blockedID, blockedID, blockerID).
			Delete(ctx)
		if err != nil {
			return err
		}

		dropped, err = gorm.G[model.FriendRequest](tx).
			Where("status = ? AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
				model.FriendRequestPending, blockerID, blockedID, blockedID, blockerID).
			Order("id ASC").
			Find(ctx)
		if err != nil {
			return err
		}
		if len(dropped) > 0 {
			ids := make([]uint, 0, len(dropped))
			for _, request := range dropped {
				ids = append(ids, request.ID)
			}
			if _, err := gorm.G[model.FriendRequest](tx).Where("id IN ?", ids).Delete(ctx); err != nil {
				return err
			}
		}

		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Block{
			BlockerID: blockerID,
			BlockedID: blockedID,
		}).Error
	})
	if err != nil {
		return err
	}

	// Every dropped request involves the blocked user on the other side.
	for _, request := range dropped {
		publish(ctx, s.Dep, event.UserTopic(blockedID), blockerID, event.FriendRequestChanged{
			Change:    event.KindDeleteFriendRequest,
			RequestID: request.ID,
		})
	}

	publish(ctx, s.Dep, event.UserTopic(blockedID), blockerID, event.FriendChanged{
		Blocked: true,
		UserID:  blockerID,
	})

	return nil
}

func (s *RelationshipService) Unblock(ctx context.Context, blockerID, blockedID uint) error {
	rows, err := gorm.G[model.Block](s.Dep.DB).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(ctx)
	if err != nil {
		return err
	}
	if rows == 0 {
		return chatError.NotFound("block not found")
	}
	return nil
}

func (s *RelationshipService) Unfriend(ctx context.Context, userID, friendID uint) error {
	var rows int
	err := s.Dep.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = gorm.G[model.Friend](tx).
			Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", userID, friendID, friendID, userID).
			Delete(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return chatError.NotFound("friendship not found")
	}

	publish(ctx, s.Dep, event.UserTopic(friendID), userID, event.FriendChanged{UserID: userID})

	return nil
}

func (s *RelationshipService) ListFriends(ctx context.Context, userID uint, q *dto.FriendListQuery) (*dto.Page[dto.FriendResponse], error) {
	page := normalizePage(s.Dep, q.PageQuery)

	checker, err := s.Presence.onlineChecker(ctx)
	if err != nil {
		return nil, err
	}

	tx := s.Dep.DB.WithContext(ctx).Model(&model.Friend{}).Where("friends.user_id = ?", userID)
	if q.Query != "" {
		tx = tx.Where("friends.friend_id IN (?)",
			s.Dep.DB.Model(&model.User{}).Select("id").Where("username LIKE ?", "%"+q.Query+"%"))
	}
	if q.IsRecent {
		window := time.Duration(s.Dep.Cfg.RecentFriendWindowInSec) * time.Second
		tx = tx.Where("friends.created_at > ?", model.NowUTC().Add(-window))
	}
	if q.IsOnline {
		tx = tx.Where("friends.friend_id IN ?", checker.ids())
	}

	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var friends []model.Friend
	err = tx.Preload("Friend").
		Order("friends.created_at DESC, friends.friend_id ASC").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&friends).Error
	if err != nil {
		return nil, err
	}

	items := make([]dto.FriendResponse, 0, len(friends))
	for _, f := range friends {
		items = append(items, dto.FriendResponse{
			SimpleUser:   *userToSimpleUser(&f.Friend),
			Online:       checker.isOnline(f.FriendID),
			LastSeenAt:   f.Friend.LastSeenAt,
			FriendsSince: f.CreatedAt,
		})
	}

	res := dto.NewPage(items, page, total)
	return &res, nil
}

func (s *RelationshipService) ListBlocked(ctx context.Context, userID uint, q *dto.PageQuery) (*dto.Page[dto.BlockedUserResponse], error) {
	page := normalizePage(s.Dep, *q)

	tx := s.Dep.DB.WithContext(ctx).Model(&model.Block{}).Where("blocker_id = ?", userID)

	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var blocks []model.Block
	err := tx.Preload("Blocked").
		Order("created_at DESC, blocked_id ASC").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}

	items := make([]dto.BlockedUserResponse, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, dto.BlockedUserResponse{
			SimpleUser: *userToSimpleUser(&b.Blocked),
			BlockedAt:  b.CreatedAt,
		})
	}

	res := dto.NewPage(items, page, total)
	return &res, nil
}
