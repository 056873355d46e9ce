package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestRejected = "rejected"

	RoleAdmin  = "admin"
	RoleMember = "member"

	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeSystem = "system"
)

// User mirrors the identity issued by the auth service.
type User struct {
	gorm.Model

	Username   string `gorm:"uniqueIndex;not null"`
	Avatar     *string
	IsOnline   bool `gorm:"not null;default:false"`
	LastSeenAt *time.Time
}

// Friend is one direction of a friendship. Rows always exist in pairs.
type Friend struct {
	UserID    uint      `gorm:"primaryKey;not null"`
	FriendID  uint      `gorm:"primaryKey;not null"`
	CreatedAt time.Time `gorm:"not null"`

	User   User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Friend User `gorm:"foreignKey:FriendID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// FriendRequest allows a single pending row per ordered (sender, receiver)
// pair through a partial unique index.
type FriendRequest struct {
	ID         uint      `gorm:"primaryKey"`
	SenderID   uint      `gorm:"not null;uniqueIndex:idx_friend_requests_pending,where:status = 'pending'"`
	ReceiverID uint      `gorm:"not null;index;uniqueIndex:idx_friend_requests_pending,where:status = 'pending'"`
	Status     string    `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`

	Sender   User `gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Receiver User `gorm:"foreignKey:ReceiverID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type Block struct {
	BlockerID uint      `gorm:"primaryKey;not null"`
	BlockedID uint      `gorm:"primaryKey;not null"`
	CreatedAt time.Time `gorm:"not null"`

	Blocker User `gorm:"foreignKey:BlockerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Blocked User `gorm:"foreignKey:BlockedID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Conversation is private (exactly two members, unique PairKey) or a group
// (PairKey is NULL). IsGroup never changes after creation.
type Conversation struct {
	ID            uint `gorm:"primaryKey"`
	IsGroup       bool `gorm:"not null"`
	CreatedBy     uint `gorm:"not null;index"`
	Name          *string
	Description   *string
	Icon          *string
	PairKey       *string    `gorm:"uniqueIndex"`
	LastMessageAt *time.Time `gorm:"index"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`

	Members []Member `gorm:"foreignKey:ConversationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Member.HiddenAt hides the conversation for this member until a newer
// message exists. Member.ClearedAt filters history and is never undone.
type Member struct {
	ID             uint      `gorm:"primaryKey"`
	ConversationID uint      `gorm:"not null;uniqueIndex:idx_members_conversation_user"`
	UserID         uint      `gorm:"not null;index;uniqueIndex:idx_members_conversation_user"`
	Role           string    `gorm:"not null"`
	JoinedAt       time.Time `gorm:"not null"`
	HiddenAt       *time.Time
	ClearedAt      *time.Time

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	User         User         `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type Message struct {
	ID                 uint      `gorm:"primaryKey"`
	ConversationID     uint      `gorm:"not null;index:idx_messages_conversation_created,priority:1"`
	SenderID           uint      `gorm:"not null;index"`
	Type               string    `gorm:"not null"`
	Content            string    `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null;index:idx_messages_conversation_created,priority:2"`
	UpdatedAt          time.Time `gorm:"not null"`
	DeletedAt          *time.Time
	DeletedForEveryone bool `gorm:"not null;default:false"`

	Conversation Conversation  `gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Sender       User          `gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Image        *MessageImage `gorm:"foreignKey:MessageID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Reactions    []Reaction    `gorm:"foreignKey:MessageID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// MessageImage is the payload row of an image message: the descriptor the
// media host returned for the uploaded file.
type MessageImage struct {
	MessageID uint   `gorm:"primaryKey;not null"`
	FileID    string `gorm:"not null"`
	URL       string `gorm:"not null"`
	Size      int64
	Width     int
	Height    int
}

// MessageHidden is a "delete for me" marker.
type MessageHidden struct {
	MessageID uint      `gorm:"primaryKey;not null"`
	UserID    uint      `gorm:"primaryKey;not null"`
	CreatedAt time.Time `gorm:"not null"`

	Message Message `gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type SeenStatus struct {
	MessageID uint      `gorm:"primaryKey;not null"`
	MemberID  uint      `gorm:"primaryKey;not null;index"`
	SeenAt    time.Time `gorm:"not null"`

	Message Message `gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Member  Member  `gorm:"foreignKey:MemberID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Reaction keeps one live reaction per user per message.
type Reaction struct {
	MessageID uint      `gorm:"primaryKey;not null"`
	UserID    uint      `gorm:"primaryKey;not null"`
	Type      string    `gorm:"not null"`
	Glyph     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type Starred struct {
	MessageID uint      `gorm:"primaryKey;not null"`
	UserID    uint      `gorm:"primaryKey;not null"`
	CreatedAt time.Time `gorm:"not null"`

	Message Message `gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

type HeartBeat struct {
	gorm.Model

	UserID     uint      `gorm:"uniqueIndex;not null"`
	LastSeenAt time.Time `gorm:"not null"`

	User User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

// Models lists every table in creation order.
func Models() []any {
	return []any{
		&User{},
		&Friend{},
		&FriendRequest{},
		&Block{},
		&Conversation{},
		&Member{},
		&Message{},
		&MessageImage{},
		&MessageHidden{},
		&SeenStatus{},
		&Reaction{},
		&Starred{},
		&HeartBeat{},
	}
}
