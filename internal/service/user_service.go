package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
)

type UserService struct {
	Dep      *dependency.Dependency
	Presence *PresenceService
}

func NewUserService(dep *dependency.Dependency, presence *PresenceService) *UserService {
	requireDB(dep, "UserService")

	return &UserService{
		Dep:      dep,
		Presence: presence,
	}
}

func defaultUsername(userID uint) string {
	return fmt.Sprintf("user%d", userID)
}

// EnsureUser creates the local mirror of an identity the auth service has
// vouched for. The handle starts as user<id> and can be changed later.
func (s *UserService) EnsureUser(ctx context.Context, userID uint) error {
	exists, err := userExists(ctx, s.Dep.DB, userID)
	if err != nil || exists {
		return err
	}

	for _, username := range []string{defaultUsername(userID), defaultUsername(userID) + "-" + uuid.NewString()[:8]} {
		user := model.User{Model: gorm.Model{ID: userID}, Username: username}
		err := s.Dep.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error
		if err != nil {
			return err
		}

		exists, err := userExists(ctx, s.Dep.DB, userID)
		if err != nil || exists {
			return err
		}
	}

	return fmt.Errorf("failed to mirror user %d", userID)
}

func (s *UserService) GetProfile(ctx context.Context, userID uint) (*dto.UserProfileResponse, error) {
	user, err := gorm.G[model.User](s.Dep.DB).Where("id = ?", userID).First(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, chatError.NotFound("user not found")
		}
		return nil, err
	}

	online, err := s.Presence.IsOnline(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &dto.UserProfileResponse{
		SimpleUser: *userToSimpleUser(&user),
		IsOnline:   online,
		LastSeenAt: user.LastSeenAt,
	}, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint, request *dto.UpdateProfileRequest) (*dto.UserProfileResponse, error) {
	rows, err := gorm.G[model.User](s.Dep.DB).Where("id = ?", userID).Updates(ctx, model.User{
		Username: request.Username,
		Avatar:   request.Avatar,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, chatError.Conflict("username already taken")
		}
		return nil, err
	}
	if rows == 0 {
		return nil, chatError.NotFound("user not found")
	}

	return s.GetProfile(ctx, userID)
}

// Heartbeat refreshes the caller's online window.
func (s *UserService) Heartbeat(ctx context.Context, userID uint) error {
	return s.Presence.Touch(ctx, userID)
}
