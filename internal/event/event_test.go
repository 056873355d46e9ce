package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "user:7", event.UserTopic(7))
	assert.Equal(t, "conversation:12", event.ConversationTopic(12))

	id, ok := event.ParseConversationTopic("conversation:12")
	assert.True(t, ok)
	assert.Equal(t, uint(12), id)

	_, ok = event.ParseConversationTopic("user:12")
	assert.False(t, ok)
	_, ok = event.ParseConversationTopic("conversation:abc")
	assert.False(t, ok)
	_, ok = event.ParseConversationTopic("conversation:0")
	assert.False(t, ok)
}

func TestEnvelopeRoundTripKeepsKind(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []event.Event{
		event.Presence{Online: true, UserID: 1},
		event.Presence{Online: false, UserID: 1},
		event.FriendChanged{Blocked: true, UserID: 2},
		event.FriendRequestChanged{Change: event.KindAcceptFriendRequest, RequestID: 3},
		event.ConversationChanged{Created: true, ConversationID: 4},
		event.MessagePayload{Updated: true, ID: 5, ConversationID: 4, SenderID: 1, Type: "text", Content: "hi", CreatedAt: now, UpdatedAt: now},
		event.MessagesSeen{ConversationID: 4, Deltas: []event.SeenDelta{{MessageID: 5, SeenByMemberIDs: []uint{8, 9}}}},
		event.ReactionChanged{Change: event.KindRemoveReaction, MessageID: 5, UserID: 2},
	}

	for _, ev := range cases {
		t.Run(string(ev.Kind()), func(t *testing.T) {
			env, err := event.NewEnvelope("conversation:4", 1, ev)
			require.NoError(t, err)
			assert.Equal(t, ev.Kind(), env.Kind)

			raw, err := json.Marshal(env)
			require.NoError(t, err)

			var back event.Envelope
			require.NoError(t, json.Unmarshal(raw, &back))

			decoded, err := event.Decode(back)
			require.NoError(t, err)
			assert.Equal(t, ev, decoded)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := event.Decode(event.Envelope{Kind: "nope", Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)
}

func TestTypedIgnoresOtherPayloads(t *testing.T) {
	var got []uint
	h := event.Typed(func(_ event.Envelope, ev event.Presence) {
		got = append(got, ev.UserID)
	})

	h(event.Envelope{}, event.Presence{Online: true, UserID: 3})
	h(event.Envelope{}, event.FriendChanged{UserID: 4})

	assert.Equal(t, []uint{3}, got)
}
