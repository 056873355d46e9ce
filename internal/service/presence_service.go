package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

const (
	HeartBeatPrefix        = "heartbeat:"
	ConnectionCountPrefix  = "presence:connections:"
	connectionCountTTL     = 24 * time.Hour
	presenceBackgroundWait = 2 * time.Second
)

// PresenceService tracks live connections per user and heartbeats. A user
// goes online with the first connection and offline with the last one;
// both transitions fan out to every friend's user topic.
type PresenceService struct {
	Dep *dependency.Dependency

	mu    sync.Mutex
	conns map[uint]int
}

func NewPresenceService(dep *dependency.Dependency) *PresenceService {
	requireDB(dep, "PresenceService")

	return &PresenceService{
		Dep:   dep,
		conns: make(map[uint]int),
	}
}

func connectionCountKey(userID uint) string {
	return ConnectionCountPrefix + strconv.FormatUint(uint64(userID), 10)
}

func (s *PresenceService) heartBeatWindow() time.Duration {
	return time.Duration(s.Dep.Cfg.HeartBeatWindowInSec) * time.Second
}

// Connect registers one more live connection for the user.
func (s *PresenceService) Connect(ctx context.Context, userID uint) error {
	first, err := s.incr(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.Touch(ctx, userID); err != nil {
		s.Dep.Logger.Warn("failed to record heartbeat", "userID", userID, "err", err)
	}

	if !first {
		return nil
	}

	return s.transition(ctx, userID, true)
}

// Disconnect drops one live connection for the user.
func (s *PresenceService) Disconnect(ctx context.Context, userID uint) error {
	last, err := s.decr(ctx, userID)
	if err != nil {
		return err
	}
	if !last {
		return nil
	}

	return s.transition(ctx, userID, false)
}

func (s *PresenceService) incr(ctx context.Context, userID uint) (bool, error) {
	if s.Dep.Cfg.IsRedisEnabled {
		key := connectionCountKey(userID)
		n, err := s.Dep.Redis.Incr(ctx, key).Result()
		if err != nil {
			return false, err
		}
		// A crashed instance never decrements; the TTL bounds the damage.
		s.Dep.Redis.Expire(ctx, key, connectionCountTTL)
		return n == 1, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[userID]++
	return s.conns[userID] == 1, nil
}

func (s *PresenceService) decr(ctx context.Context, userID uint) (bool, error) {
	if s.Dep.Cfg.IsRedisEnabled {
		key := connectionCountKey(userID)
		n, err := s.Dep.Redis.Decr(ctx, key).Result()
		if err != nil {
			return false, err
		}
		if n <= 0 {
			s.Dep.Redis.Del(ctx, key)
			return true, nil
		}
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.conns[userID]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(s.conns, userID)
		return true, nil
	}
	s.conns[userID] = n - 1
	return false, nil
}

func (s *PresenceService) transition(ctx context.Context, userID uint, online bool) error {
	now := model.NowUTC()

	err := s.Dep.DB.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Updates(map[string]any{
		"is_online":    online,
		"last_seen_at": now,
	}).Error
	if err != nil {
		return err
	}

	friendIDs, err := friendIDsOf(ctx, s.Dep.DB, userID)
	if err != nil {
		return err
	}

	ev := event.Presence{Online: online, UserID: userID}
	for _, friendID := range friendIDs {
		publish(ctx, s.Dep, event.UserTopic(friendID), userID, ev)
	}

	return nil
}

// Touch records a heartbeat.
func (s *PresenceService) Touch(ctx context.Context, userID uint) error {
	if s.Dep.Cfg.IsRedisEnabled {
		return s.Dep.Redis.ZAdd(ctx, HeartBeatPrefix, redis.Z{
			Score:  float64(time.Now().Unix()),
			Member: userID,
		}).Err()
	}

	return s.Dep.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at", "updated_at"}),
	}).Create(&model.HeartBeat{
		UserID:     userID,
		LastSeenAt: model.NowUTC(),
	}).Error
}

type onlineStatusChecker struct {
	heartBeatSet map[uint]struct{}
}

func newOnlineStatusChecker(heartBeats []model.HeartBeat) *onlineStatusChecker {
	hs := &onlineStatusChecker{
		heartBeatSet: make(map[uint]struct{}, len(heartBeats)),
	}

	for _, hb := range heartBeats {
		hs.heartBeatSet[hb.UserID] = struct{}{}
	}

	return hs
}

func (os *onlineStatusChecker) isOnline(userID uint) bool {
	_, exists := os.heartBeatSet[userID]
	return exists
}

func (os *onlineStatusChecker) ids() []uint {
	ids := make([]uint, 0, len(os.heartBeatSet))
	for id := range os.heartBeatSet {
		ids = append(ids, id)
	}
	return ids
}

func (s *PresenceService) getOnlineStatusByDB(ctx context.Context) ([]model.HeartBeat, error) {
	return gorm.G[model.HeartBeat](s.Dep.DB).
		Where("last_seen_at > ?", model.NowUTC().Add(-s.heartBeatWindow())).
		Find(ctx)
}

func (s *PresenceService) clearExpiredHeartBeatsByRedis() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), presenceBackgroundWait)
		defer cancel()

		cutoff := strconv.FormatInt(time.Now().Add(-s.heartBeatWindow()).Unix(), 10)
		if err := s.Dep.Redis.ZRemRangeByScore(ctx, HeartBeatPrefix, "-inf", cutoff).Err(); err != nil {
			s.Dep.Logger.Warn("failed to clear expired heartbeats from redis", "err", err)
		}
	}()
}

func (s *PresenceService) getOnlineStatusByRedis(ctx context.Context) ([]model.HeartBeat, error) {
	heartBeats := make([]model.HeartBeat, 0)

	zs, err := s.Dep.Redis.ZRangeByScoreWithScores(ctx, HeartBeatPrefix, &redis.ZRangeBy{
		Min: strconv.FormatInt(time.Now().Add(-s.heartBeatWindow()).Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, z := range zs {
		userID, err := strconv.ParseUint(fmt.Sprint(z.Member), 10, 64)
		if err != nil {
			return nil, err
		}

		heartBeats = append(heartBeats, model.HeartBeat{
			UserID:     uint(userID),
			LastSeenAt: time.Unix(int64(z.Score), 0).UTC(),
		})
	}

	s.clearExpiredHeartBeatsByRedis()

	return heartBeats, nil
}

func (s *PresenceService) onlineChecker(ctx context.Context) (*onlineStatusChecker, error) {
	var (
		heartBeats []model.HeartBeat
		err        error
	)
	if s.Dep.Cfg.IsRedisEnabled {
		heartBeats, err = s.getOnlineStatusByRedis(ctx)
	} else {
		heartBeats, err = s.getOnlineStatusByDB(ctx)
	}
	if err != nil {
		return nil, err
	}

	return newOnlineStatusChecker(heartBeats), nil
}

// IsOnline reports whether the user sent a heartbeat inside the window.
func (s *PresenceService) IsOnline(ctx context.Context, userID uint) (bool, error) {
	checker, err := s.onlineChecker(ctx)
	if err != nil {
		return false, err
	}
	return checker.isOnline(userID), nil
}
