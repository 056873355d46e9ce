package service_test

import (
	"context"
	"sync"
	"testing"

	"gorm.io/gorm"

	chatError "github.com/nilotpaldhar/kwikchat-sub001/internal/chat_error"
	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/event"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/testutil"
)

func listConversationIDs(t *testing.T, svcs *service.Services, userID uint, q dto.ConversationListQuery) []uint {
	t.Helper()

	page, err := svcs.Conversations.ListConversations(context.Background(), userID, &q)
	if err != nil {
		t.Fatalf("failed to list conversations: %v", err)
	}
	ids := make([]uint, 0, len(page.Items))
	for _, c := range page.Items {
		ids = append(ids, c.ID)
	}
	return ids
}

func sendPrivate(t *testing.T, svcs *service.Services, from, to uint, content string) *dto.MessageResponse {
	t.Helper()

	msg, err := svcs.Messages.SendPrivateMessage(context.Background(), from, &dto.SendPrivateMessageRequest{
		ReceiverID:     to,
		MessageContent: testutil.TextContent(content),
	})
	if err != nil {
		t.Fatalf("failed to send message: %v", err)
	}
	return msg
}

func TestPairKey(t *testing.T) {
	if service.PairKey(7, 3) != "3:7" || service.PairKey(3, 7) != "3:7" {
		t.Fatalf("expected order independent pair key, got %s", service.PairKey(7, 3))
	}
}

func TestFindOrCreatePrivate(t *testing.T) {
	svcs, dep := testutil.NewTestServices(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, dep.DB, "alice")
	bob := testutil.CreateUser(t, dep.DB, "bob")
	carol := testutil.CreateUser(t, dep.DB, "carol")
	dave := testutil.CreateUser(t, dep.DB, "dave")
	testutil.MakeFriends(t, dep.DB, alice.ID, bob.ID)
	testutil.MakeFriends(t, dep.DB, alice.ID, dave.ID)
	testutil.MakeBlock(t, dep.DB, dave.ID, alice.ID)

	bobInbox := testutil.Listen(t, dep.Broker, event.UserTopic(bob.ID))

	first, err := svcs.Conversations.FindOrCreatePrivate(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if first.IsGroup || first.Peer == nil || first.Peer.ID != bob.ID || len(first.Members) != 2 {
		t.Fatalf("unexpected conversation: %+v", first)
	}
	if kinds := bobInbox.Kinds(); len(kinds) != 1 || kinds[0] != event.KindConversationNew {
		t.Fatalf("expected conversation_new for bob, got %v", kinds)
	}

	second, err := svcs.Conversations.FindOrCreatePrivate(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same conversation, got %d and %d", first.ID, second.ID)
	}
	if len(bobInbox.Drain()) != 0 {
		t.Fatal("expected no event for an existing conversation")
	}

	_, err = svcs.Conversations.FindOrCreatePrivate(ctx, alice.ID, carol.ID)
	requireKind(t, err, chatError.KindFriendshipNotFound)
	_, err = svcs.Conversations.FindOrCreatePrivate(ctx, alice.ID, dave.ID)
	requireKind(t, err, chatError.KindBlocked)
	_, err = svcs.Conversations.FindOrCreatePrivate(ctx, alice.ID, alice.ID)
	requireKind(t, err, chatError.KindNotAllowed)
	_, err = svcs.Conversations.FindOrCreatePrivate(ctx, alice.ID, 9999)
	requireKind(t, err, chatError.KindNotFound)
}

func TestConcurrentFindOrCreatePrivate(t *testing.T) {
	svcs, dep := testutil.NewTestServices(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, dep.DB, "alice")
	bob := testutil.CreateUser(t, dep.DB, "bob")
	testutil.MakeFriends(t, dep.DB, alice.ID, bob.ID)

	const attempts = 6
	ids := make([]uint, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := svcs.Conversations.FindOrCreatePrivate(ctx, a, b)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one conversation, got %v", ids)
		}
	}

	count, err := gorm.G[model.Conversation](dep.DB).Count(ctx, "*")
	if err != nil || count != 1 {
		t.Fatalf("expected one conversation row, got %d err %v", count, err)
	}
}

func TestGroupLifecycle(t *testing.T) {
	svcs, dep := testutil.NewTestServices(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, dep.DB, "alice")
	bob := testutil.CreateUser(t, dep.DB, "bob")
	carol := testutil.CreateUser(t, dep.DB, "carol")
	stranger := testutil.CreateUser(t, dep.DB, "stranger")
	testutil.MakeFriends(t, dep.DB, alice.ID, bob.ID)
	testutil.MakeFriends(t, dep.DB, alice.ID, carol.ID)

	t.Run("members must be friends of the creator", func(t *testing.T) {
		_, err := svcs.Conversations.CreateGroup(ctx, alice.ID, &dto.CreateGroupRequest{Name: "g", MemberIDs: []uint{bob.ID, stranger.ID}})
		requireKind(t, err, chatError.KindInvalidMembers)

		_, err = svcs.Conversations.CreateGroup(ctx, alice.ID, &dto.CreateGroupRequest{Name: "g", MemberIDs: []uint{alice.ID}})
		requireKind(t, err, chatError.KindInvalidMembers)
	})

	bobInbox := testutil.Listen(t, dep.Broker, event.UserTopic(bob.ID))

	group, err := svcs.Conversations.CreateGroup(ctx, alice.ID, &dto.CreateGroupRequest{
		Name:      "weekend",
		MemberIDs: []uint{bob.ID, bob.ID},
	})
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if !group.IsGroup || group.MyRole != model.RoleAdmin || len(group.Members) != 2 {
		t.Fatalf("unexpected group: %+v", group)
	}
	if group.LastMessage == nil || group.LastMessage.Type != model.MessageTypeSystem {
		t.Fatalf("expected a system message, got %+v", group.LastMessage)
	}
	if kinds := bobInbox.Kinds(); len(kinds) != 1 || kinds[0] != event.KindConversationNew {
		t.Fatalf("expected conversation_new for bob, got %v", kinds)
	}

	convInbox := testutil.Listen(t, dep.Broker, event.ConversationTopic(group.ID))

	t.Run("only admins update", func(t *testing.T) {
		name := "renamed"
		_, err := svcs.Conversations.UpdateGroup(ctx, bob.ID, group.ID, &dto.UpdateGroupRequest{Name: &name})
		requireKind(t, err, chatError.KindNotAllowed)

		updated, err := svcs.Conversations.UpdateGroup(ctx, alice.ID, group.ID, &dto.UpdateGroupRequest{Name: &name})
		if err != nil {
			t.Fatalf("unexpected error, err: %v", err)
		}
		if updated.Name == nil || *updated.Name != "renamed" {
			t.Fatalf("expected renamed group, got %+v", updated)
		}
		if kinds := convInbox.Kinds(); len(kinds) != 1 || kinds[0] != event.KindConversationUpdated {
			t.Fatalf("expected conversation_updated, got %v", kinds)
		}
	})

	t.Run("add members", func(t *testing.T) {
		carolInbox := testutil.Listen(t, dep.Broker, event.UserTopic(carol.ID))

		_, err := svcs.Conversations.AddMembers(ctx, alice.ID, group.ID, &dto.AddMembersRequest{MemberIDs: []uint{stranger.ID}})
		requireKind(t, err, chatError.KindInvalidMembers)

		overview, err := svcs.Conversations.AddMembers(ctx, alice.ID, group.ID, &dto.AddMembersRequest{MemberIDs: []uint{carol.ID, bob.ID}})
		if err != nil {
			t.Fatalf("unexpected error, err: %v", err)
		}
		if len(overview.Members) != 3 {
			t.Fatalf("expected 3 members, got %d", len(overview.Members))
		}
		if kinds := carolInbox.Kinds(); len(kinds) != 1 || kinds[0] != event.KindConversationNew {
			t.Fatalf("expected conversation_new for carol, got %v", kinds)
		}
		convInbox.Drain()
	})

	t.Run("remove member", func(t *testing.T) {
		requireKind(t, svcs.Conversations.RemoveMember(ctx, bob.ID, group.ID, carol.ID), chatError.KindNotAllowed)
		requireKind(t, svcs.Conversations.RemoveMember(ctx, alice.ID, group.ID, alice.ID), chatError.KindNotAllowed)

		if err := svcs.Conversations.RemoveMember(ctx, alice.ID, group.ID, carol.ID); err != nil {
			t.Fatalf("unexpected error, err: %v", err)
		}
		_, err := svcs.Conversations.Overview(ctx, group.ID, carol.ID)
		requireKind(t, err, chatError.KindNotGroupMember)
	})

	t.Run("last admin leaving hands over", func(t *testing.T) {
		if err := svcs.Conversations.LeaveGroup(ctx, group.ID, alice.ID); err != nil {
			t.Fatalf("unexpected error, err: %v", err)
		}

		overview, err := svcs.Conversations.Overview(ctx, group.ID, bob.ID)
		if err != nil {
			t.Fatalf("unexpected error, err: %v", err)
		}
		if overview.MyRole != model.RoleAdmin || len(overview.Members) != 1 {
			t.Fatalf("expected bob promoted and alone, got %+v", overview)
		}
	})

	t.Run("last member leaving deletes the group", func(t *testing.T) {
		if err := svcs.Conversations.LeaveGroup(ctx, group.ID, bob.ID); err != nil {
			t.Fatalf("unexpected error, err: %v", err)
		}
		count, err := gorm.G[model.Conversation](dep.DB).Where("id = ?", group.ID).Count(ctx, "*")
		if err != nil || count != 0 {
			t.Fatalf("expected group deleted, got %d err %v", count, err)
		}
	})
}

func TestDeleteGroup(t *testing.T) {
	svcs, dep := testutil.NewTestServices(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, dep.DB, "alice")
	bob := testutil.CreateUser(t, dep.DB, "bob")
	testutil.MakeFriends(t, dep.DB, alice.ID, bob.ID)

	group, err := svcs.Conversations.CreateGroup(ctx, alice.ID, &dto.CreateGroupRequest{Name: "g", MemberIDs: []uint{bob.ID}})
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	msg, err := svcs.Messages.SendGroupMessage(ctx, bob.ID, group.ID, &dto.SendGroupMessageRequest{MessageContent: testutil.TextContent("hi")})
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if _, err := svcs.Messages.ToggleReaction(ctx, alice.ID, msg.ID, &dto.ToggleReactionRequest{Type: dto.ReactionLike}); err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}

	requireKind(t, svcs.Conversations.DeleteGroup(ctx, group.ID, bob.ID), chatError.KindNotAllowed)

	bobInbox := testutil.Listen(t, dep.Broker, event.UserTopic(bob.ID))
	if err := svcs.Conversations.DeleteGroup(ctx, group.ID, alice.ID); err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if kinds := bobInbox.Kinds(); len(kinds) != 1 || kinds[0] != event.KindConversationUpdated {
		t.Fatalf("expected conversation_updated for bob, got %v", kinds)
	}

	for _, table := range []any{&model.Message{}, &model.Member{}, &model.Reaction{}} {
		var count int64
		if err := dep.DB.Model(table).Count(&count).Error; err != nil || count != 0 {
			t.Fatalf("expected %T rows gone, got %d err %v", table, count, err)
		}
	}
}

func TestHideAndResurrect(t *testing.T) {
	svcs, dep := testutil.NewTestServices(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, dep.DB, "alice")
	bob := testutil.CreateUser(t, dep.DB, "bob")
	testutil.MakeFriends(t, dep.DB, alice.ID, bob.ID)

	msg := sendPrivate(t, svcs, alice.ID, bob.ID, "hello")

	if ids := listConversationIDs(t, svcs, bob.ID, dto.ConversationListQuery{}); len(ids) != 1 || ids[0] != msg.ConversationID {
		t.Fatalf("expected the conversation listed, got %v", ids)
	}

	if err := svcs.Conversations.Hide(ctx, msg.ConversationID, bob.ID); err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if ids := listConversationIDs(t, svcs, bob.ID, dto.ConversationListQuery{}); len(ids) != 0 {
		t.Fatalf("expected hidden conversation, got %v", ids)
	}
	// Hiding is per member.
	if ids := listConversationIDs(t, svcs, alice.ID, dto.ConversationListQuery{}); len(ids) != 1 {
		t.Fatalf("expected alice still sees it, got %v", ids)
	}

	bobInbox := testutil.Listen(t, dep.Broker, event.UserTopic(bob.ID))
	aliceInbox := testutil.Listen(t, dep.Broker, event.UserTopic(alice.ID))

	sendPrivate(t, svcs, alice.ID, bob.ID, "are you there?")
	if ids := listConversationIDs(t, svcs, bob.ID, dto.ConversationListQuery{}); len(ids) != 1 {
		t.Fatalf("expected a newer message to resurrect the conversation, got %v", ids)
	}
	if kinds := bobInbox.Kinds(); len(kinds) != 1 || kinds[0] != event.KindConversationUpdated {
		t.Fatalf("expected bob told about the resurrected conversation, got %v", kinds)
	}
	if kinds := aliceInbox.Kinds(); len(kinds) != 0 {
		t.Fatalf("expected nothing for alice, got %v", kinds)
	}

	// Already visible again: no second announcement.
	sendPrivate(t, svcs, alice.ID, bob.ID, "hello?")
	if kinds := bobInbox.Kinds(); len(kinds) != 0 {
		t.Fatalf("expected no announcement, got %v", kinds)
	}

	requireKind(t, svcs.Conversations.Hide(ctx, msg.ConversationID, 9999), chatError.KindNotGroupMember)
}

func TestClearHistory(t *testing.T) {
	svcs, dep := testutil.NewTestServices(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, dep.DB, "alice")
	bob := testutil.CreateUser(t, dep.DB, "bob")
	testutil.MakeFriends(t, dep.DB, alice.ID, bob.ID)

	first := sendPrivate(t, svcs, alice.ID, bob.ID, "one")
	sendPrivate(t, svcs, bob.ID, alice.ID, "two")

	if err := svcs.Conversations.Clear(ctx, first.ConversationID, alice.ID); err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}

	alicePage, err := svcs.Messages.ListMessages(ctx, alice.ID, first.ConversationID, &dto.PageQuery{})
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if len(alicePage.Items) != 0 {
		t.Fatalf("expected cleared history for alice, got %+v", alicePage.Items)
	}
	bobPage, err := svcs.Messages.ListMessages(ctx, bob.ID, first.ConversationID, &dto.PageQuery{})
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if len(bobPage.Items) != 2 {
		t.Fatalf("expected bob keeps history, got %d", len(bobPage.Items))
	}

	// Clearing never hides the conversation.
	if ids := listConversationIDs(t, svcs, alice.ID, dto.ConversationListQuery{}); len(ids) != 1 {
		t.Fatalf("expected the conversation still listed, got %v", ids)
	}

	third := sendPrivate(t, svcs, bob.ID, alice.ID, "three")

	if err := svcs.Conversations.Clear(ctx, first.ConversationID, bob.ID); err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}

	var remaining []model.Message
	if err := dep.DB.Order("id ASC").Find(&remaining).Error; err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != third.ID {
		t.Fatalf("expected only the message after alice's clear to survive, got %+v", remaining)
	}
}

func TestListConversationsUnread(t *testing.T) {
	svcs, dep := testutil.NewTestServices(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, dep.DB, "alice")
	bob := testutil.CreateUser(t, dep.DB, "bob")
	carol := testutil.CreateUser(t, dep.DB, "carol")
	testutil.MakeFriends(t, dep.DB, alice.ID, bob.ID)
	testutil.MakeFriends(t, dep.DB, alice.ID, carol.ID)

	fromBob := sendPrivate(t, svcs, bob.ID, alice.ID, "hi alice")
	unreadTail := sendPrivate(t, svcs, bob.ID, alice.ID, "you there?")
	fromAlice := sendPrivate(t, svcs, alice.ID, carol.ID, "hi carol")

	group, err := svcs.Conversations.CreateGroup(ctx, alice.ID, &dto.CreateGroupRequest{Name: "g", MemberIDs: []uint{bob.ID}})
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}

	page, err := svcs.Conversations.ListConversations(ctx, alice.ID, &dto.ConversationListQuery{})
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if len(page.Items) != 3 || page.Items[0].ID != group.ID {
		t.Fatalf("expected 3 conversations, newest first, got %+v", page.Items)
	}
	unread := make(map[uint]int64)
	for _, c := range page.Items {
		unread[c.ID] = c.UnreadCount
	}
	if unread[fromBob.ConversationID] != 2 || unread[fromAlice.ConversationID] != 0 || unread[group.ID] != 0 {
		t.Fatalf("unexpected unread counts: %v", unread)
	}

	if ids := listConversationIDs(t, svcs, alice.ID, dto.ConversationListQuery{IncludeUnreadOnly: true}); len(ids) != 1 || ids[0] != fromBob.ConversationID {
		t.Fatalf("expected only bob's conversation unread, got %v", ids)
	}
	if ids := listConversationIDs(t, svcs, alice.ID, dto.ConversationListQuery{GroupOnly: true}); len(ids) != 1 || ids[0] != group.ID {
		t.Fatalf("expected only the group, got %v", ids)
	}

	if _, err := svcs.Messages.MarkSeen(ctx, alice.ID, &dto.MarkSeenRequest{MessageIDs: []uint{fromBob.ID}}); err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	overview, err := svcs.Conversations.Overview(ctx, fromBob.ConversationID, alice.ID)
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if overview.UnreadCount != 1 || overview.LastMessage == nil || overview.LastMessage.Content != "you there?" {
		t.Fatalf("unexpected overview: %+v", overview)
	}

	// A message deleted for alice no longer counts as unread for her.
	if err := svcs.Messages.DeleteMessage(ctx, alice.ID, unreadTail.ID, false); err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	overview, err = svcs.Conversations.Overview(ctx, fromBob.ConversationID, alice.ID)
	if err != nil {
		t.Fatalf("unexpected error, err: %v", err)
	}
	if overview.UnreadCount != 0 {
		t.Fatalf("expected no unread messages, got %d", overview.UnreadCount)
	}
	if ids := listConversationIDs(t, svcs, alice.ID, dto.ConversationListQuery{IncludeUnreadOnly: true}); len(ids) != 0 {
		t.Fatalf("expected no unread conversations, got %v", ids)
	}
}
