package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/middleware"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/testutil"
)

type testPayload struct {
	Name string `json:"name" validate:"required"`
}

func TestValidateBody(t *testing.T) {
	dto.InitValidator()

	testCases := []struct {
		name           string
		payload        string
		expectedStatus int
	}{
		{name: "success", payload: `{"name":"ok"}`, expectedStatus: 200},
		{name: "validation error", payload: `{}`, expectedStatus: 400},
		{name: "invalid json", payload: `{`, expectedStatus: 400},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := testutil.NewMiddlewareTestRouter(
				middleware.ErrorHandler(),
				middleware.ValidateBody[testPayload](),
			)
			req, _ := http.NewRequest(http.MethodPost, "/middleware-test", strings.NewReader(tc.payload))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Fatalf("expected: %d, got: %d", tc.expectedStatus, w.Code)
			}
		})
	}
}

func TestValidateQueryStoresParsedQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dto.InitValidator()

	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.GET("/friends", middleware.ValidateQuery[dto.FriendListQuery](), func(c *gin.Context) {
		q := middleware.Query[dto.FriendListQuery](c)
		c.JSON(http.StatusOK, gin.H{"page": q.Page, "online": q.IsOnline, "query": q.Query})
	})

	req := httptest.NewRequest(http.MethodGet, "/friends?page=2&is_online=true&query=%20bo%20", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	if body := resp.Body.String(); !strings.Contains(body, `"page":2`) || !strings.Contains(body, `"online":true`) || !strings.Contains(body, `"query":"bo"`) {
		t.Fatalf("unexpected body: %s", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/friends?page_size=1000", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversize page, got %d", resp.Code)
	}
}
