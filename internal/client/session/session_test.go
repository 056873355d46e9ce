package session_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/api"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/clienttest"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/session"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/syncer"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/testutil"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func open(t *testing.T, srv *clienttest.Server, userID uint) *session.Session {
	t.Helper()

	s, err := session.Open(context.Background(), session.Config{
		APIURL:     srv.APIURL,
		WSURL:      srv.WSURL,
		Token:      srv.Token(t, userID),
		RetryDelay: 50 * time.Millisecond,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// show mounts a key for the rest of the test and loads it.
func show[T any](t *testing.T, c *syncer.Cache[T], key syncer.Key) {
	t.Helper()
	t.Cleanup(c.Mount(key))
	_, err := c.Load(context.Background(), key)
	require.NoError(t, err)
}

func page[T any](c *syncer.Cache[T], key syncer.Key) []syncer.Item[T] {
	p, _ := c.Get(key)
	return p.Items
}

var (
	conversations = syncer.Key{Query: session.ConversationsQuery, Page: 1}
	friends       = syncer.Key{Query: session.FriendsQuery, Page: 1}
)

func TestSessionMergesIncomingMessages(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, bob.ID)
	conv, err := srv.Svcs.Conversations.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	bobSession := open(t, srv, bob.ID)
	assert.Equal(t, bob.ID, bobSession.UserID)
	assert.True(t, bobSession.Following(conv.ID))

	messages := session.MessagesKey(conv.ID, 1)
	show(t, bobSession.Messages, messages)
	show(t, bobSession.Conversations, conversations)

	sent, err := srv.Svcs.Messages.SendPrivateMessage(ctx, alice.ID, &dto.SendPrivateMessageRequest{
		ReceiverID:     bob.ID,
		MessageContent: testutil.TextContent("hello"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items := page(bobSession.Messages, messages)
		return len(items) == 1 && items[0].ID == syncer.UintID(sent.ID)
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		c, ok := bobSession.Conversations.Find(session.ConversationsQuery, syncer.UintID(conv.ID))
		return ok && c.UnreadCount == 1 && c.LastMessage != nil && c.LastMessage.Content == "hello"
	}, waitFor, tick)

	_, err = srv.Svcs.Messages.EditMessage(ctx, alice.ID, sent.ID, &dto.EditMessageRequest{Content: "hello!"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items := page(bobSession.Messages, messages)
		return len(items) == 1 && items[0].Value.Content == "hello!" && items[0].Value.IsEdited
	}, waitFor, tick)

	_, err = srv.Svcs.Messages.ToggleReaction(ctx, alice.ID, sent.ID, &dto.ToggleReactionRequest{Type: dto.ReactionLove})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items := page(bobSession.Messages, messages)
		return len(items) == 1 && len(items[0].Value.Reactions) == 1 && items[0].Value.Reactions[0].Type == dto.ReactionLove
	}, waitFor, tick)
}

func TestSessionOptimisticSend(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, bob.ID)
	overview, err := srv.Svcs.Conversations.FindOrCreatePrivate(ctx, bob.ID, alice.ID)
	require.NoError(t, err)

	bobSession := open(t, srv, bob.ID)
	messages := session.MessagesKey(overview.ID, 1)
	show(t, bobSession.Messages, messages)

	msg, err := bobSession.SendMessage(ctx, overview.ConversationResponse, testutil.TextContent("on my way"))
	require.NoError(t, err)

	items := page(bobSession.Messages, messages)
	require.Len(t, items, 1)
	assert.Equal(t, syncer.UintID(msg.ID), items[0].ID)
	assert.False(t, items[0].Pending())
	assert.Equal(t, "on my way", items[0].Value.Content)
	loaded, _ := bobSession.Messages.Get(messages)
	assert.EqualValues(t, 1, loaded.Pagination.TotalItems, "totals are reloaded after the send")
	assert.False(t, loaded.Pagination.HasNextPage)

	edited, err := bobSession.EditMessage(ctx, overview.ID, msg.ID, "running late")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "running late", page(bobSession.Messages, messages)[0].Value.Content)

	require.NoError(t, bobSession.DeleteMessage(ctx, overview.ID, msg.ID, false))
	assert.Empty(t, page(bobSession.Messages, messages))
}

func TestSessionRollsBackRejectedSend(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, bob.ID)
	overview, err := srv.Svcs.Conversations.FindOrCreatePrivate(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	_, err = srv.Svcs.Messages.SendPrivateMessage(ctx, alice.ID, &dto.SendPrivateMessageRequest{
		ReceiverID:     bob.ID,
		MessageContent: testutil.TextContent("first"),
	})
	require.NoError(t, err)

	bobSession := open(t, srv, bob.ID)
	messages := session.MessagesKey(overview.ID, 1)
	show(t, bobSession.Messages, messages)
	before, _ := bobSession.Messages.Get(messages)

	testutil.MakeBlock(t, srv.Dep.DB, alice.ID, bob.ID)

	_, err = bobSession.SendMessage(ctx, overview.ConversationResponse, testutil.TextContent("are you there?"))
	assert.True(t, api.HasCode(err, string(chatError.KindSenderBlocked)), "got %v", err)

	after, _ := bobSession.Messages.Get(messages)
	assert.Equal(t, before, after)
}

func TestSessionFollowsNewGroups(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, bob.ID)

	bobSession := open(t, srv, bob.ID)
	show(t, bobSession.Conversations, conversations)

	group, err := srv.Svcs.Conversations.CreateGroup(ctx, alice.ID, &dto.CreateGroupRequest{Name: "crew", MemberIDs: []uint{bob.ID}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bobSession.Following(group.ID) }, waitFor, tick)
	require.Eventually(t, func() bool {
		_, ok := bobSession.Conversations.Find(session.ConversationsQuery, syncer.UintID(group.ID))
		return ok
	}, waitFor, tick)

	messages := session.MessagesKey(group.ID, 1)
	show(t, bobSession.Messages, messages)
	loaded := len(page(bobSession.Messages, messages))

	_, err = srv.Svcs.Messages.SendGroupMessage(ctx, alice.ID, group.ID, &dto.SendGroupMessageRequest{MessageContent: testutil.TextContent("welcome")})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items := page(bobSession.Messages, messages)
		return len(items) == loaded+1 && items[0].Value.Content == "welcome"
	}, waitFor, tick)

	require.NoError(t, srv.Svcs.Conversations.RemoveMember(ctx, alice.ID, group.ID, bob.ID))
	require.Eventually(t, func() bool { return !bobSession.Following(group.ID) }, waitFor, tick)
	assert.Eventually(t, func() bool {
		_, ok := bobSession.Messages.Get(messages)
		return !ok
	}, waitFor, tick, "messages of a conversation left behind are dropped")
}

func TestSessionTracksFriendPresence(t *testing.T) {
	srv := clienttest.NewServer(t)

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, bob.ID)

	bobSession := open(t, srv, bob.ID)
	show(t, bobSession.Friends, friends)

	f, ok := bobSession.Friends.Find(session.FriendsQuery, syncer.UintID(alice.ID))
	require.True(t, ok)
	assert.False(t, f.Online)

	aliceSession := open(t, srv, alice.ID)
	require.Eventually(t, func() bool {
		f, ok := bobSession.Friends.Find(session.FriendsQuery, syncer.UintID(alice.ID))
		return ok && f.Online
	}, waitFor, tick)

	aliceSession.Close()
	require.Eventually(t, func() bool {
		f, ok := bobSession.Friends.Find(session.FriendsQuery, syncer.UintID(alice.ID))
		return ok && !f.Online
	}, waitFor, tick)
}

func TestSessionFriendRequests(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")

	aliceSession := open(t, srv, alice.ID)
	bobSession := open(t, srv, bob.ID)
	requests := syncer.Key{Query: session.FriendRequestsQuery, Page: 1}
	show(t, aliceSession.FriendRequests, requests)
	show(t, bobSession.FriendRequests, requests)
	show(t, aliceSession.Friends, friends)

	sent, err := aliceSession.SendFriendRequest(ctx, bob.ID)
	require.NoError(t, err)
	items := page(aliceSession.FriendRequests, requests)
	require.Len(t, items, 1)
	assert.Equal(t, syncer.UintID(sent.ID), items[0].ID)

	// The incoming event makes bob's view reload.
	require.Eventually(t, func() bool {
		_, ok := bobSession.FriendRequests.Find(session.FriendRequestsQuery, syncer.UintID(sent.ID))
		return ok
	}, waitFor, tick)

	_, err = bobSession.AcceptFriendRequest(ctx, sent.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := aliceSession.Friends.Find(session.FriendsQuery, syncer.UintID(bob.ID))
		return ok
	}, waitFor, tick)
}

func TestSessionClearAndUnfriend(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, bob.ID)
	sent, err := srv.Svcs.Messages.SendPrivateMessage(ctx, alice.ID, &dto.SendPrivateMessageRequest{
		ReceiverID:     bob.ID,
		MessageContent: testutil.TextContent("old news"),
	})
	require.NoError(t, err)

	bobSession := open(t, srv, bob.ID)
	messages := session.MessagesKey(sent.ConversationID, 1)
	show(t, bobSession.Messages, messages)
	show(t, bobSession.Conversations, conversations)
	show(t, bobSession.Friends, friends)
	require.Len(t, page(bobSession.Messages, messages), 1)

	require.NoError(t, bobSession.ClearConversation(ctx, sent.ConversationID))
	assert.Empty(t, page(bobSession.Messages, messages))
	c, ok := bobSession.Conversations.Find(session.ConversationsQuery, syncer.UintID(sent.ConversationID))
	require.True(t, ok)
	assert.Nil(t, c.LastMessage)
	assert.Zero(t, c.UnreadCount)

	before, _ := bobSession.Friends.Get(friends)
	err = bobSession.Unfriend(ctx, 9999)
	assert.True(t, api.HasCode(err, string(chatError.KindNotFound)), "got %v", err)
	after, _ := bobSession.Friends.Get(friends)
	assert.Equal(t, before, after, "a failed unfriend leaves the list as it was")

	require.NoError(t, bobSession.Unfriend(ctx, alice.ID))
	assert.Empty(t, page(bobSession.Friends, friends))
}

func TestSessionReactionAndStar(t *testing.T) {
	srv := clienttest.NewServer(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, srv.Dep.DB, "alice")
	bob := testutil.CreateUser(t, srv.Dep.DB, "bob")
	testutil.MakeFriends(t, srv.Dep.DB, alice.ID, bob.ID)
	sent, err := srv.Svcs.Messages.SendPrivateMessage(ctx, alice.ID, &dto.SendPrivateMessageRequest{
		ReceiverID:     bob.ID,
		MessageContent: testutil.TextContent("lunch?"),
	})
	require.NoError(t, err)

	bobSession := open(t, srv, bob.ID)
	messages := session.MessagesKey(sent.ConversationID, 1)
	show(t, bobSession.Messages, messages)
	starred := syncer.Key{Query: session.StarredQuery, Page: 1}
	show(t, bobSession.Messages, starred)

	before, _ := bobSession.Messages.Get(messages)
	_, err = bobSession.ToggleReaction(ctx, sent.ConversationID, sent.ID, "shrug")
	assert.True(t, api.HasCode(err, string(chatError.KindValidation)), "got %v", err)
	after, _ := bobSession.Messages.Get(messages)
	assert.Equal(t, before, after, "a refused reaction is rolled back")

	resp, err := bobSession.ToggleReaction(ctx, sent.ConversationID, sent.ID, dto.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, dto.ReactionCreated, resp.Action)
	msg := page(bobSession.Messages, messages)[0].Value
	require.Len(t, msg.Reactions, 1)
	assert.Equal(t, bob.ID, msg.Reactions[0].UserID)
	assert.Equal(t, dto.ReactionLike, msg.Reactions[0].Type)

	resp, err = bobSession.ToggleReaction(ctx, sent.ConversationID, sent.ID, dto.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, dto.ReactionRemoved, resp.Action)
	assert.Empty(t, page(bobSession.Messages, messages)[0].Value.Reactions)

	star, err := bobSession.ToggleStar(ctx, sent.ConversationID, sent.ID)
	require.NoError(t, err)
	assert.True(t, star.Starred)
	assert.True(t, page(bobSession.Messages, messages)[0].Value.Starred)
	starredItems := page(bobSession.Messages, starred)
	require.Len(t, starredItems, 1)
	assert.Equal(t, syncer.UintID(sent.ID), starredItems[0].ID)

	before, _ = bobSession.Messages.Get(messages)
	_, err = bobSession.ToggleStar(ctx, sent.ConversationID, 9999)
	assert.Error(t, err)
	after, _ = bobSession.Messages.Get(messages)
	assert.Equal(t, before, after)
}
