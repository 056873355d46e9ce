package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	model "github.com/nilotpaldhar/kwikchat-sub001/internal/db"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/testutil"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/util/jwt"
)

type routerEnv struct {
	router *gin.Engine
	dep    *dependency.Dependency
}

func setupRouterTest(t *testing.T) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dto.InitValidator()

	svcs, dep := testutil.NewTestServices(t)

	router := SetupRouter(dep)
	APIRouter(router.Group("/api"), dep, svcs, nil)

	return &routerEnv{router: router, dep: dep}
}

func (env *routerEnv) token(t *testing.T, userID uint) string {
	t.Helper()
	token, err := jwt.SignUserToken(env.dep, userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign user token: %v", err)
	}
	return token
}

func (env *routerEnv) do(t *testing.T, method, path string, userID uint, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+env.token(t, userID))
	}

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", resp.Body.String(), err)
	}
	return out
}

func expectCode(t *testing.T, resp *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if resp.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, resp.Code, resp.Body.String())
	}
	if code == "" {
		return
	}
	payload := decode[map[string]any](t, resp)
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v", code, payload)
	}
}

func TestPing(t *testing.T) {
	env := setupRouterTest(t)

	resp := env.do(t, http.MethodGet, "/api/ping", 0, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if payload := decode[map[string]string](t, resp); payload["message"] != "pong" {
		t.Fatalf("unexpected response: %v", payload)
	}
}

func TestSwaggerUIServed(t *testing.T) {
	env := setupRouterTest(t)

	resp := env.do(t, http.MethodGet, "/api/docs/index.html", 0, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestRateLimitCountsPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dto.InitValidator()

	svcs, dep := testutil.NewTestServices(t)
	dep.Cfg.RateLimiterRequestLimit = 1

	router := SetupRouter(dep)
	APIRouter(router.Group("/api"), dep, svcs, nil)
	env := &routerEnv{router: router, dep: dep}

	// httptest requests all come from the same address.
	expectCode(t, env.do(t, http.MethodGet, "/api/users/me", 1, nil), http.StatusOK, "")
	expectCode(t, env.do(t, http.MethodGet, "/api/users/me", 2, nil), http.StatusOK, "")
	expectCode(t, env.do(t, http.MethodGet, "/api/users/me", 1, nil), http.StatusTooManyRequests, "RATE_LIMITED")

	if resp := env.do(t, http.MethodGet, "/api/ping", 0, nil); resp.Code != http.StatusOK {
		t.Fatalf("expected first anonymous ping 200, got %d", resp.Code)
	}
	if resp := env.do(t, http.MethodGet, "/api/ping", 0, nil); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second anonymous ping 429, got %d", resp.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupRouterTest(t)

	for _, path := range []string{"/api/users/me", "/api/friends", "/api/conversations", "/api/starred"} {
		resp := env.do(t, http.MethodGet, path, 0, nil)
		expectCode(t, resp, http.StatusUnauthorized, "UNAUTHORIZED")
	}
}

func TestMeMirrorsTokenUser(t *testing.T) {
	env := setupRouterTest(t)

	resp := env.do(t, http.MethodGet, "/api/users/me", 314, nil)
	expectCode(t, resp, http.StatusOK, "")

	profile := decode[dto.UserProfileResponse](t, resp)
	if profile.ID != 314 || profile.Username != "user314" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	resp = env.do(t, http.MethodPut, "/api/users/me", 314, map[string]any{"username": "  pi  "})
	expectCode(t, resp, http.StatusBadRequest, "VALIDATION")

	resp = env.do(t, http.MethodPut, "/api/users/me", 314, map[string]any{"username": "  pie  "})
	expectCode(t, resp, http.StatusOK, "")
	if profile := decode[dto.UserProfileResponse](t, resp); profile.Username != "pie" {
		t.Fatalf("expected trimmed username, got %+v", profile)
	}

	resp = env.do(t, http.MethodPost, "/api/users/me/heartbeat", 314, nil)
	expectCode(t, resp, http.StatusNoContent, "")
}

func TestFriendshipToMessageFlow(t *testing.T) {
	env := setupRouterTest(t)

	alice := testutil.CreateUser(t, env.dep.DB, "alice")
	bob := testutil.CreateUser(t, env.dep.DB, "bob")

	resp := env.do(t, http.MethodPost, "/api/friend-requests", alice.ID, map[string]any{"receiverId": bob.ID})
	expectCode(t, resp, http.StatusCreated, "")
	request := decode[dto.FriendRequestResponse](t, resp)
	if request.Direction != "outgoing" || request.Status != model.FriendRequestPending {
		t.Fatalf("unexpected request: %+v", request)
	}

	resp = env.do(t, http.MethodPost, "/api/friend-requests", alice.ID, map[string]any{"receiverId": bob.ID})
	expectCode(t, resp, http.StatusConflict, "DUPLICATE_PENDING")

	resp = env.do(t, http.MethodGet, "/api/friend-requests?type=incoming", bob.ID, nil)
	expectCode(t, resp, http.StatusOK, "")
	if page := decode[dto.Page[dto.FriendRequestResponse]](t, resp); len(page.Items) != 1 || page.Items[0].Direction != "incoming" {
		t.Fatalf("expected one incoming request, got %+v", page)
	}

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/friend-requests/%d/accept", request.ID), alice.ID, nil)
	expectCode(t, resp, http.StatusNotFound, "NOT_FOUND")

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/friend-requests/%d/accept", request.ID), bob.ID, nil)
	expectCode(t, resp, http.StatusOK, "")

	resp = env.do(t, http.MethodGet, "/api/friends?page=1&page_size=10", alice.ID, nil)
	expectCode(t, resp, http.StatusOK, "")
	friends := decode[dto.Page[dto.FriendResponse]](t, resp)
	if len(friends.Items) != 1 || friends.Items[0].ID != bob.ID || friends.Pagination.PageSize != 10 {
		t.Fatalf("expected bob as the only friend, got %+v", friends)
	}

	resp = env.do(t, http.MethodPost, "/api/messages/private", alice.ID, map[string]any{
		"receiverId": bob.ID,
		"type":       "text",
		"content":    "hello bob",
	})
	expectCode(t, resp, http.StatusCreated, "")
	msg := decode[dto.MessageResponse](t, resp)

	resp = env.do(t, http.MethodGet, "/api/conversations?include_unread_only=true", bob.ID, nil)
	expectCode(t, resp, http.StatusOK, "")
	conversations := decode[dto.Page[dto.ConversationResponse]](t, resp)
	if len(conversations.Items) != 1 || conversations.Items[0].UnreadCount != 1 {
		t.Fatalf("expected one unread conversation, got %+v", conversations)
	}

	resp = env.do(t, http.MethodPost, "/api/messages/seen", bob.ID, map[string]any{"messageIds": []uint{msg.ID}})
	expectCode(t, resp, http.StatusOK, "")

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/messages/%d/reactions", msg.ID), bob.ID, map[string]any{"type": "meh"})
	expectCode(t, resp, http.StatusBadRequest, "VALIDATION")

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/messages/%d/reactions", msg.ID), bob.ID, map[string]any{"type": "love"})
	expectCode(t, resp, http.StatusOK, "")
	if toggled := decode[dto.ToggleReactionResponse](t, resp); toggled.Action != dto.ReactionCreated || toggled.Reaction.Glyph != dto.ReactionGlyphs[dto.ReactionLove] {
		t.Fatalf("unexpected reaction: %+v", toggled)
	}

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", msg.ConversationID), bob.ID, nil)
	expectCode(t, resp, http.StatusOK, "")
	messages := decode[dto.Page[dto.MessageResponse]](t, resp)
	if len(messages.Items) != 1 || len(messages.Items[0].SeenByMemberIDs) != 1 || len(messages.Items[0].Reactions) != 1 {
		t.Fatalf("expected seen and reacted message, got %+v", messages)
	}

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/messages/%d?for_everyone=true", msg.ID), bob.ID, nil)
	expectCode(t, resp, http.StatusForbidden, "NOT_ALLOWED")

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/messages/%d?for_everyone=true", msg.ID), alice.ID, nil)
	expectCode(t, resp, http.StatusNoContent, "")
}

func TestBlockedUserCannotMessage(t *testing.T) {
	env := setupRouterTest(t)

	alice := testutil.CreateUser(t, env.dep.DB, "alice")
	bob := testutil.CreateUser(t, env.dep.DB, "bob")
	testutil.MakeFriends(t, env.dep.DB, alice.ID, bob.ID)

	resp := env.do(t, http.MethodPost, "/api/blocks", bob.ID, map[string]any{"userId": alice.ID})
	expectCode(t, resp, http.StatusNoContent, "")

	resp = env.do(t, http.MethodPost, "/api/messages/private", alice.ID, map[string]any{
		"receiverId": bob.ID,
		"type":       "text",
		"content":    "hi?",
	})
	expectCode(t, resp, http.StatusForbidden, "SENDER_BLOCKED")

	resp = env.do(t, http.MethodGet, "/api/blocks", bob.ID, nil)
	expectCode(t, resp, http.StatusOK, "")
	if page := decode[dto.Page[dto.BlockedUserResponse]](t, resp); len(page.Items) != 1 || page.Items[0].ID != alice.ID {
		t.Fatalf("expected alice blocked, got %+v", page)
	}

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/blocks/%d", alice.ID), bob.ID, nil)
	expectCode(t, resp, http.StatusNoContent, "")
}

func TestGroupRoutes(t *testing.T) {
	env := setupRouterTest(t)

	alice := testutil.CreateUser(t, env.dep.DB, "alice")
	bob := testutil.CreateUser(t, env.dep.DB, "bob")
	testutil.MakeFriends(t, env.dep.DB, alice.ID, bob.ID)

	resp := env.do(t, http.MethodPost, "/api/conversations/groups", alice.ID, map[string]any{"name": "team", "memberIds": []uint{}})
	expectCode(t, resp, http.StatusBadRequest, "VALIDATION")

	resp = env.do(t, http.MethodPost, "/api/conversations/groups", alice.ID, map[string]any{"name": "team", "memberIds": []uint{bob.ID}})
	expectCode(t, resp, http.StatusCreated, "")
	group := decode[dto.ConversationOverviewResponse](t, resp)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", group.ID), bob.ID, map[string]any{"type": "text", "content": "hi team"})
	expectCode(t, resp, http.StatusCreated, "")

	resp = env.do(t, http.MethodPatch, fmt.Sprintf("/api/conversations/%d", group.ID), bob.ID, map[string]any{"name": "mine"})
	expectCode(t, resp, http.StatusForbidden, "NOT_ALLOWED")

	resp = env.do(t, http.MethodGet, "/api/conversations/abc", bob.ID, nil)
	expectCode(t, resp, http.StatusBadRequest, "VALIDATION")

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/leave", group.ID), bob.ID, nil)
	expectCode(t, resp, http.StatusNoContent, "")

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d", group.ID), bob.ID, nil)
	expectCode(t, resp, http.StatusForbidden, "NOT_GROUP_MEMBER")

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/conversations/%d", group.ID), alice.ID, nil)
	expectCode(t, resp, http.StatusNoContent, "")
}

func TestDevRouterResetDebugMode(t *testing.T) {
	gin.SetMode(gin.TestMode)

	_, dep := testutil.NewTestServices(t)
	dep.Cfg.GinMode = "debug"

	testutil.CreateUser(t, dep.DB, "tester")

	router := gin.New()
	DevRouter(router.Group("/api/dev"), dep)

	req := httptest.NewRequest(http.MethodGet, "/api/dev/reset", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	count, err := gorm.G[model.User](dep.DB).Count(context.Background(), "*")
	if err != nil || count != 0 {
		t.Fatalf("expected users table emptied, got %d err %v", count, err)
	}
}

func TestDevRouterHiddenOutsideDebug(t *testing.T) {
	gin.SetMode(gin.TestMode)

	_, dep := testutil.NewTestServices(t)

	router := gin.New()
	DevRouter(router.Group("/api/dev"), dep)

	req := httptest.NewRequest(http.MethodGet, "/api/dev/reset", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}
