// Package event defines the broadcast surface: topic names, event kinds and
// one payload struct per kind. Events travel as JSON Envelopes.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	KindOnline  Kind = "online"
	KindOffline Kind = "offline"

	KindBlockFriend  Kind = "block_friend"
	KindDeleteFriend Kind = "delete_friend"

	KindIncomingFriendRequest Kind = "incoming_friend_request"
	KindAcceptFriendRequest   Kind = "accept_friend_request"
	KindRejectFriendRequest   Kind = "reject_friend_request"
	KindDeleteFriendRequest   Kind = "delete_friend_request"

	KindConversationNew     Kind = "conversation_new"
	KindConversationUpdated Kind = "conversation_updated"

	KindNewMessage    Kind = "new_message"
	KindUpdateMessage Kind = "update_message"
	KindSeenMessage   Kind = "seen_message"

	KindCreateReaction Kind = "create_reaction"
	KindUpdateReaction Kind = "update_reaction"
	KindRemoveReaction Kind = "remove_reaction"
)

const (
	userTopicPrefix         = "user:"
	conversationTopicPrefix = "conversation:"
)

func UserTopic(userID uint) string {
	return userTopicPrefix + strconv.FormatUint(uint64(userID), 10)
}

func ConversationTopic(conversationID uint) string {
	return conversationTopicPrefix + strconv.FormatUint(uint64(conversationID), 10)
}

// ParseConversationTopic returns the conversation id of a conversation topic.
func ParseConversationTopic(topic string) (uint, bool) {
	raw, ok := strings.CutPrefix(topic, conversationTopicPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Event is implemented by every payload struct below.
type Event interface {
	Kind() Kind
}

type Presence struct {
	Online bool `json:"-"`
	UserID uint `json:"userId"`
}

func (e Presence) Kind() Kind {
	if e.Online {
		return KindOnline
	}
	return KindOffline
}

type FriendChanged struct {
	Blocked bool `json:"-"`
	UserID  uint `json:"userId"`
}

func (e FriendChanged) Kind() Kind {
	if e.Blocked {
		return KindBlockFriend
	}
	return KindDeleteFriend
}

type FriendRequestChanged struct {
	Change    Kind `json:"-"`
	RequestID uint `json:"requestId"`
}

func (e FriendRequestChanged) Kind() Kind { return e.Change }

type ConversationChanged struct {
	Created        bool `json:"-"`
	ConversationID uint `json:"conversationId"`
}

func (e ConversationChanged) Kind() Kind {
	if e.Created {
		return KindConversationNew
	}
	return KindConversationUpdated
}

type Image struct {
	FileID string `json:"fileId"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MessagePayload is the message snapshot carried by new_message and
// update_message.
type MessagePayload struct {
	Updated            bool       `json:"-"`
	ID                 uint       `json:"id"`
	ConversationID     uint       `json:"conversationId"`
	SenderID           uint       `json:"senderId"`
	Type               string     `json:"type"`
	Content            string     `json:"content"`
	Image              *Image     `json:"image,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty"`
	DeletedForEveryone bool       `json:"deletedForEveryone"`
}

func (e MessagePayload) Kind() Kind {
	if e.Updated {
		return KindUpdateMessage
	}
	return KindNewMessage
}

type SeenDelta struct {
	MessageID       uint   `json:"messageId"`
	SeenByMemberIDs []uint `json:"seenByMemberIds"`
}

type MessagesSeen struct {
	ConversationID uint        `json:"conversationId"`
	Deltas         []SeenDelta `json:"deltas"`
}

func (e MessagesSeen) Kind() Kind { return KindSeenMessage }

type ReactionChanged struct {
	Change    Kind   `json:"-"`
	MessageID uint   `json:"messageId"`
	UserID    uint   `json:"userId"`
	Type      string `json:"type,omitempty"`
	Glyph     string `json:"glyph,omitempty"`
}

func (e ReactionChanged) Kind() Kind { return e.Change }

// Envelope is the wire frame for every broadcast.
type Envelope struct {
	Topic   string          `json:"topic"`
	Kind    Kind            `json:"event"`
	ActorID uint            `json:"actorId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func NewEnvelope(topic string, actorID uint, ev Event) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Topic:   topic,
		Kind:    ev.Kind(),
		ActorID: actorID,
		Payload: payload,
	}, nil
}

// Decode turns an envelope back into its typed payload.
func Decode(env Envelope) (Event, error) {
	switch env.Kind {
	case KindOnline, KindOffline:
		ev := Presence{Online: env.Kind == KindOnline}
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindBlockFriend, KindDeleteFriend:
		ev := FriendChanged{Blocked: env.Kind == KindBlockFriend}
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindIncomingFriendRequest, KindAcceptFriendRequest, KindRejectFriendRequest, KindDeleteFriendRequest:
		ev := FriendRequestChanged{Change: env.Kind}
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindConversationNew, KindConversationUpdated:
		ev := ConversationChanged{Created: env.Kind == KindConversationNew}
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindNewMessage, KindUpdateMessage:
		ev := MessagePayload{Updated: env.Kind == KindUpdateMessage}
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindSeenMessage:
		var ev MessagesSeen
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case KindCreateReaction, KindUpdateReaction, KindRemoveReaction:
		ev := ReactionChanged{Change: env.Kind}
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
}
