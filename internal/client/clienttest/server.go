// Package clienttest runs the whole service behind an httptest server for
// the client packages' tests.
package clienttest

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nilotpaldhar/kwikchat-sub001/internal/client/api"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dependency"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/dto"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/gateway"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/routers"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/service"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/testutil"
	"github.com/nilotpaldhar/kwikchat-sub001/internal/util/jwt"
)

type Server struct {
	Svcs    *service.Services
	Dep     *dependency.Dependency
	Gateway *gateway.Gateway
	APIURL  string
	WSURL   string
}

func NewServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dto.InitValidator()

	svcs, dep := testutil.NewTestServices(t)
	gw := gateway.New(dep, svcs.Presence, svcs.Conversations)

	r := routers.SetupRouter(dep)
	routers.APIRouter(r.Group("/api"), dep, svcs, gw)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		gw.Close()
		srv.Close()
	})

	return &Server{
		Svcs:    svcs,
		Dep:     dep,
		Gateway: gw,
		APIURL:  srv.URL + "/api",
		WSURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws",
	}
}

func (s *Server) Token(t *testing.T, userID uint) string {
	t.Helper()
	token, err := jwt.SignUserToken(s.Dep, userID, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign user token: %v", err)
	}
	return token
}

func (s *Server) Client(t *testing.T, userID uint) *api.Client {
	t.Helper()
	return api.New(s.APIURL, s.Token(t, userID))
}
