package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"resale/internal/middleware"
	"resale/internal/model"
	"resale/internal/repository/memstore"
	"resale/internal/service/chat"
	"resale/internal/service/order"
	"resale/internal/service/payment"
	"resale/internal/service/post"
	jwtutil "resale/internal/utils"
	"resale/pkg/breaker"
	"resale/pkg/lock"
	"resale/pkg/snowflake"
	"resale/pkg/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.RegisterCustomValidators()
	m.Run()
}

// tokenStub accepts tokens of the form "user-<id>"
type tokenStub struct{}

func (tokenStub) ValidateToken(_ context.Context, token string) (*jwtutil.JWTClaims, error) {
	var id uint64
	if _, err := fmt.Sscanf(token, "user-%d", &id); err != nil || id == 0 {
		return nil, errors.New("bad token")
	}
	return &jwtutil.JWTClaims{UserID: id, Username: fmt.Sprintf("u%d", id), Role: "user", SessionID: "sess-" + token}, nil
}

func newRouter(h Handlers, validator middleware.TokenValidator) *gin.Engine {
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), h, middleware.Auth(validator))
	return r
}

// do sends body as JSON. userID 0 sends no token.
func do(r http.Handler, method, path string, body interface{}, userID uint64) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		buf = bytes.NewBuffer(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer user-%d", userID))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// envelope decodes the response; data is unmarshalled into out when given
func envelope(t *testing.T, w *httptest.ResponseRecorder, out interface{}) utils.Response {
	t.Helper()
	var raw struct {
		Code    int             `json:"code"`
		Message string          `json:"msg"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), w.Body.String())
	if out != nil && len(raw.Data) > 0 && !strings.EqualFold(string(raw.Data), "null") {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return utils.Response{Code: raw.Code, Message: raw.Message}
}

const webhookSecret = "whsec_handler"

type testAPI struct {
	store  *memstore.Store
	auth   *MockAuthService
	router *gin.Engine
}

// newTestAPI wires real services over memstore; auth is mocked
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gen, err := snowflake.NewIDGenerator(3)
	require.NoError(t, err)
	store := memstore.New()

	orders := order.NewOrderService(store, gen, order.Config{ServiceFeeBP: 500, TaxBP: 800}, nil)
	payments := payment.NewPaymentService(store, payment.NewSandboxProvider(),
		breaker.NewCircuitBreaker("payment", breaker.Config{}), gen,
		payment.Config{WebhookSecret: webhookSecret}, nil)
	chats := chat.NewChatService(store, lock.NewLocker(client, time.Second), nil, chat.Config{}, nil)
	authMock := &MockAuthService{}

	h := Handlers{
		Auth:    NewAuthHandler(authMock),
		Post:    NewPostHandler(post.NewPostService(store.Posts()), 50),
		Order:   NewOrderHandler(orders, 50),
		Payment: NewPaymentHandler(payments),
		Chat:    NewChatHandler(chats),
	}
	return &testAPI{store: store, auth: authMock, router: newRouter(h, tokenStub{})}
}

func (a *testAPI) seedUser(t *testing.T, name string) uint64 {
	t.Helper()
	u := &model.User{Username: name, Role: model.RoleUser, Status: model.UserStatusNormal}
	require.NoError(t, a.store.Users().Create(context.Background(), u))
	return u.ID
}
