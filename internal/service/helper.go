package service

import (
	"context"

	"gorm.io/gorm"

	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

// Services is the full set the routers and the gateway work with.
type Services struct {
	Users         *UserService
	Presence      *PresenceService
	Relationships *RelationshipService
	Conversations *ConversationService
	Messages      *MessageService
}

func NewServices(dep *dependency.Dependency) *Services {
	presence := NewPresenceService(dep)
	conversations := NewConversationService(dep, presence)

	return &Services{
		Users:         NewUserService(dep, presence),
		Presence:      presence,
		Relationships: NewRelationshipService(dep, presence),
		Conversations: conversations,
		Messages:      NewMessageService(dep, conversations),
	}
}

func requireDB(dep *dependency.Dependency, name string) {
	if dep.DB == nil {
		panic(name + ": db is nil")
	}
	if dep.Cfg.IsRedisEnabled && dep.Redis == nil {
		panic(name + ": redis is enabled but redis client is nil")
	}
}

// publish runs after commit. Broadcast is best-effort: a failure is logged
// and the committed write stands.
func publish(ctx context.Context, dep *dependency.Dependency, topic string, actorID uint, ev event.Event) {
	env, err := event.NewEnvelope(topic, actorID, ev)
	if err != nil {
		dep.Logger.Error("failed to encode event", "topic", topic, "event", ev.Kind(), "err", err)
		return
	}

	if err := dep.Broker.Publish(context.WithoutCancel(ctx), env); err != nil {
		dep.Logger.Warn("failed to publish event", "topic", topic, "event", ev.Kind(), "err", err)
	}
}

func userToSimpleUser(user *model.User) *dto.SimpleUser {
	return &dto.SimpleUser{
		ID:       user.ID,
		Username: user.Username,
		Avatar:   user.Avatar,
	}
}

func normalizePage(dep *dependency.Dependency, q dto.PageQuery) dto.PageQuery {
	return q.Normalize(dep.Cfg.DefaultPageSize, dep.Cfg.MaxPageSize)
}

func isBlocked(ctx context.Context, tx *gorm.DB, a, b uint) (bool, error) {
	count, err := gorm.G[model.Block](tx).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(ctx, "*")
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func areFriends(ctx context.Context, tx *gorm.DB, a, b uint) (bool, error) {
	count, err := gorm.G[model.Friend](tx).Where("user_id = ? AND friend_id = ?", a, b).Count(ctx, "*")
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func userExists(ctx context.Context, tx *gorm.DB, userID uint) (bool, error) {
	count, err := gorm.G[model.User](tx).Where("id = ?", userID).Count(ctx, "*")
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func friendIDsOf(ctx context.Context, tx *gorm.DB, userID uint) ([]uint, error) {
	var ids []uint
	err := tx.WithContext(ctx).Model(&model.Friend{}).Where("user_id = ?", userID).Pluck("friend_id", &ids).Error
	return ids, err
}

func uniqueIDs(ids []uint, exclude uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
