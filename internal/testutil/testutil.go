package testutil

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/broker"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/config"
	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/notify"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
)

func NewTestConfig() *config.Config {
	return &config.Config{
		GinMode:                         "test",
		Port:                            "3004",
		JwtSecret:                       "test-secret",
		FrontendUrl:                     "http://localhost:3000",
		RedisURL:                        "",
		IsRedisEnabled:                  false,
		RateLimiterDurationInSec:        60,
		RateLimiterRequestLimit:         1000,
		RateLimiterCleanupIntervalInSec: 300,
		HeartBeatWindowInSec:            120,
		RecentFriendWindowInSec:         7 * 24 * 3600,
		DefaultPageSize:                 20,
		MaxPageSize:                     100,
		MailFrom:                        "no-reply@kwikchat.test",
	}
}

func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// RecordingMailer keeps every mail it was asked to send.
type RecordingMailer struct {
	mu    sync.Mutex
	mails []notify.Mail
}

func (m *RecordingMailer) Send(_ context.Context, mail notify.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mails = append(m.mails, mail)
	return nil
}

func (m *RecordingMailer) Mails() []notify.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Mail(nil), m.mails...)
}

// NewTestDependency wires an in-process broker and a recording mailer.
func NewTestDependency(cfg *config.Config, db *gorm.DB, redis *redis.Client, logger *slog.Logger) *dependency.Dependency {
	if cfg == nil {
		cfg = NewTestConfig()
	}
	if logger == nil {
		logger = NewTestLogger()
	}
	if redis != nil {
		cfg.IsRedisEnabled = true
		if cfg.RedisURL == "" {
			cfg.RedisURL = "redis://test"
		}
	}
	return dependency.NewDependency(cfg, db, redis, broker.NewMemoryBroker(logger), &RecordingMailer{}, logger)
}

func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Sanitize test name for use as DB identifier
	dbName := "file:" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) +
		"?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=on"

	myDB, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		TranslateError: true,
		NowFunc:        model.NowUTC,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	myDB.Exec("PRAGMA foreign_keys = ON")

	if err := model.MigrateDB(myDB); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	sqlDB, err := myDB.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return myDB
}

func NewTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client, mr
}

// NewTestServices returns the full service set over a fresh database.
func NewTestServices(t *testing.T) (*service.Services, *dependency.Dependency) {
	t.Helper()

	dep := NewTestDependency(nil, NewTestDB(t), nil, nil)
	t.Cleanup(func() {
		_ = dep.Broker.Close()
	})

	return service.NewServices(dep), dep
}

// NewTestRedisServices is NewTestServices with Redis-backed presence and
// pub/sub.
func NewTestRedisServices(t *testing.T) (*service.Services, *dependency.Dependency, *miniredis.Miniredis) {
	t.Helper()

	client, mr := NewTestRedis(t)
	cfg := NewTestConfig()
	logger := NewTestLogger()
	dep := NewTestDependency(cfg, NewTestDB(t), client, logger)
	dep.Broker = broker.NewRedisBroker(client, logger)

	return service.NewServices(dep), dep, mr
}

func CreateUser(t *testing.T, myDB *gorm.DB, username string) *model.User {
	t.Helper()

	user := model.User{Username: username}
	if err := gorm.G[model.User](myDB).Create(context.Background(), &user); err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}

	return &user
}

// MakeFriends inserts both directions of a friendship.
func MakeFriends(t *testing.T, myDB *gorm.DB, a, b uint) {
	t.Helper()

	rows := []model.Friend{
		{UserID: a, FriendID: b},
		{UserID: b, FriendID: a},
	}
	if err := myDB.Create(&rows).Error; err != nil {
		t.Fatalf("failed to create friendship %d<->%d: %v", a, b, err)
	}
}

func MakeBlock(t *testing.T, myDB *gorm.DB, blocker, blocked uint) {
	t.Helper()

	if err := myDB.Create(&model.Block{BlockerID: blocker, BlockedID: blocked}).Error; err != nil {
		t.Fatalf("failed to create block %d->%d: %v", blocker, blocked, err)
	}
}

func TextContent(content string) dto.MessageContent {
	return dto.MessageContent{Type: model.MessageTypeText, Content: content}
}

// Inbox collects every envelope published on a topic.
type Inbox struct {
	sub broker.Subscription
}

// Listen subscribes before the action under test. MemoryBroker delivers into
// the buffer synchronously, so Drain right after the action sees everything.
func Listen(t *testing.T, b broker.Broker, topic string) *Inbox {
	t.Helper()

	sub, err := b.Subscribe(context.Background(), topic)
	if err != nil {
		t.Fatalf("failed to subscribe %s: %v", topic, err)
	}
	t.Cleanup(func() {
		_ = sub.Close()
	})

	return &Inbox{sub: sub}
}

func (in *Inbox) Drain() []event.Envelope {
	var out []event.Envelope
	for {
		select {
		case env, ok := <-in.sub.C():
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func (in *Inbox) Kinds() []event.Kind {
	var kinds []event.Kind
	for _, env := range in.Drain() {
		kinds = append(kinds, env.Kind)
	}
	return kinds
}

func NewMiddlewareTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/middleware-test", handlers...)

	return r
}
