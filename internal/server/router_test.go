package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kataras/iris/v12"
	radix "github.com/mediocregopher/radix/v3"
	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/auth"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/testutil"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	t     *testing.T
	app   *iris.Application
	admin *iris.Application
	a     *App
	db    *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithRedis(t, nil)
}

func newTestServerWithRedis(t *testing.T, redisClient radix.Client) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000

	db := testutil.OpenDB(t)
	a := Build(cfg, db, redisClient, nil)
	t.Cleanup(a.Hub.Wait)

	app := iris.New()
	RegisterRoutes(app, a)
	admin := iris.New()
	RegisterAdminRoutes(admin, a)
	for _, x := range []*iris.Application{app, admin} {
		if err := x.Build(); err != nil {
			t.Fatalf("build app: %v", err)
		}
	}
	return &testServer{t: t, app: app, admin: admin, a: a, db: db}
}

func (s *testServer) token(u *user.User) string {
	s.t.Helper()
	tok, err := auth.GenerateToken(&s.a.Cfg.JWT, u.ID, u.Email, u.Role, time.Hour)
	if err != nil {
		s.t.Fatalf("token: %v", err)
	}
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	return s.serve(s.app, method, path, token, body)
}

func (s *testServer) doAdmin(method, path string, body interface{}) (int, envelope) {
	s.t.Helper()
	return s.serve(s.admin, method, path, "", body)
}

func (s *testServer) serve(h http.Handler, method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec.Code, env
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(http.MethodGet, "/api/health", "", nil); code != http.StatusOK {
		t.Fatalf("health: %d", code)
	}
	code, env := s.do(http.MethodGet, "/api/contacts", "", nil)
	if code != http.StatusUnauthorized || env.Msg != "missing token" {
		t.Fatalf("expected 401 missing token, got %d %q", code, env.Msg)
	}
	code, env = s.do(http.MethodGet, "/api/contacts", "garbage", nil)
	if code != http.StatusUnauthorized || env.Msg != "invalid token" {
		t.Fatalf("expected 401 invalid token, got %d %q", code, env.Msg)
	}
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func TestConversationAndMessageFlow(t *testing.T) {
	s := newTestServer(t)
	mentor := testutil.CreateUser(t, s.db, "mentor", user.RoleMentor)
	mentee := testutil.CreateUser(t, s.db, "mentee", user.RoleMentee)
	outsider := testutil.CreateUser(t, s.db, "outsider", user.RoleMentee)
	if err := s.a.Contacts.AutoPopulateGroupContacts(context.Background(), mentor.ID, []int64{mentee.ID}); err != nil {
		t.Fatalf("autopopulate: %v", err)
	}
	mentorTok, menteeTok, outsiderTok := s.token(mentor), s.token(mentee), s.token(outsider)

	code, env := s.do(http.MethodPost, "/api/conversations", mentorTok, map[string]int64{"otherUserId": mentee.ID})
	if code != http.StatusOK {
		t.Fatalf("create conversation: %d %s", code, env.Msg)
	}
	var conv struct {
		ID int64 `json:"id"`
	}
	decode(t, env, &conv)

	// 对方发起得到同一个会话
	_, env = s.do(http.MethodPost, "/api/conversations", menteeTok, map[string]int64{"otherUserId": mentor.ID})
	var again struct {
		ID int64 `json:"id"`
	}
	decode(t, env, &again)
	if again.ID != conv.ID {
		t.Fatalf("expected the same conversation, got %d and %d", conv.ID, again.ID)
	}

	if code, _ := s.do(http.MethodPost, "/api/conversations", outsiderTok, map[string]int64{"otherUserId": mentor.ID}); code != http.StatusForbidden {
		t.Fatalf("outsider without contact edge: expected 403, got %d", code)
	}

	msgPath := fmt.Sprintf("/api/direct-messages/%d", conv.ID)
	code, env = s.do(http.MethodPost, msgPath, mentorTok, map[string]string{"content": "hello there"})
	if code != http.StatusCreated {
		t.Fatalf("send: %d %s", code, env.Msg)
	}
	var sent struct {
		ID       int64  `json:"id"`
		Content  string `json:"content"`
		SenderID int64  `json:"senderId"`
	}
	decode(t, env, &sent)
	if sent.Content != "hello there" || sent.SenderID != mentor.ID {
		t.Fatalf("unexpected message %+v", sent)
	}

	if code, _ := s.do(http.MethodPost, msgPath, mentorTok, map[string]string{"content": "   "}); code != http.StatusBadRequest {
		t.Fatalf("blank content: expected 400, got %d", code)
	}
	if code, _ := s.do(http.MethodGet, msgPath, outsiderTok, nil); code != http.StatusForbidden {
		t.Fatalf("non-participant list: expected 403, got %d", code)
	}
	if code, _ := s.do(http.MethodGet, "/api/direct-messages/999999", mentorTok, nil); code != http.StatusNotFound {
		t.Fatalf("missing conversation: expected 404, got %d", code)
	}

	code, env = s.do(http.MethodPost, msgPath+"/read", menteeTok, nil)
	if code != http.StatusOK {
		t.Fatalf("read: %d %s", code, env.Msg)
	}
	var receipt struct {
		Count int64 `json:"count"`
	}
	decode(t, env, &receipt)
	if receipt.Count != 1 {
		t.Fatalf("expected one message marked read, got %d", receipt.Count)
	}

	code, env = s.do(http.MethodGet, msgPath+"?limit=500", menteeTok, nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d %s", code, env.Msg)
	}
	var list []struct {
		ID int64 `json:"id"`
	}
	decode(t, env, &list)
	if len(list) != 1 || list[0].ID != sent.ID {
		t.Fatalf("unexpected history %+v", list)
	}

	editPath := fmt.Sprintf("/api/direct-messages/%d", sent.ID)
	if code, _ := s.do(http.MethodPut, editPath, menteeTok, map[string]string{"content": "hijack"}); code != http.StatusForbidden {
		t.Fatalf("edit by non-sender: expected 403, got %d", code)
	}
	if code, env := s.do(http.MethodPut, editPath, mentorTok, map[string]string{"content": "hello again"}); code != http.StatusOK {
		t.Fatalf("edit: %d %s", code, env.Msg)
	}

	code, env = s.do(http.MethodGet, msgPath+"/search?query=again", mentorTok, nil)
	if code != http.StatusOK {
		t.Fatalf("search: %d %s", code, env.Msg)
	}
	decode(t, env, &list)
	if len(list) != 1 {
		t.Fatalf("expected one search hit, got %d", len(list))
	}

	if code, env := s.do(http.MethodDelete, editPath+"/delete-everyone", mentorTok, nil); code != http.StatusOK {
		t.Fatalf("delete for everyone: %d %s", code, env.Msg)
	}
	_, env = s.do(http.MethodGet, msgPath, menteeTok, nil)
	var after []struct {
		Content   string `json:"content"`
		IsDeleted bool   `json:"isDeleted"`
	}
	decode(t, env, &after)
	if len(after) != 1 || !after[0].IsDeleted || after[0].Content != "[Message deleted]" {
		t.Fatalf("expected a tombstone, got %+v", after)
	}
}

func TestContactRequestFlow(t *testing.T) {
	s := newTestServer(t)
	alice := testutil.CreateUser(t, s.db, "alice", user.RoleMentee)
	bob := testutil.CreateUser(t, s.db, "bob", user.RoleMentee)
	aliceTok, bobTok := s.token(alice), s.token(bob)

	if code, _ := s.do(http.MethodPost, "/api/contacts/request/send", aliceTok, map[string]int64{"receiverId": alice.ID}); code != http.StatusBadRequest {
		t.Fatalf("self request: expected 400, got %d", code)
	}
	code, env := s.do(http.MethodPost, "/api/contacts/request/send", aliceTok, map[string]interface{}{"receiverId": bob.ID, "message": "hi"})
	if code != http.StatusCreated && code != http.StatusOK {
		t.Fatalf("send request: %d %s", code, env.Msg)
	}
	var req struct {
		ID int64 `json:"id"`
	}
	decode(t, env, &req)
	if code, _ := s.do(http.MethodPost, "/api/contacts/request/send", aliceTok, map[string]int64{"receiverId": bob.ID}); code != http.StatusConflict {
		t.Fatalf("duplicate request: expected 409, got %d", code)
	}

	acceptPath := fmt.Sprintf("/api/contacts/request/%d/accept", req.ID)
	if code, _ := s.do(http.MethodPatch, acceptPath, aliceTok, nil); code != http.StatusForbidden {
		t.Fatalf("sender accepting: expected 403, got %d", code)
	}
	if code, env := s.do(http.MethodPatch, acceptPath, bobTok, nil); code != http.StatusOK {
		t.Fatalf("accept: %d %s", code, env.Msg)
	}
	if code, _ := s.do(http.MethodPatch, acceptPath, bobTok, nil); code == http.StatusOK {
		t.Fatal("accepting twice must fail")
	}

	code, env = s.do(http.MethodGet, "/api/contacts", aliceTok, nil)
	if code != http.StatusOK {
		t.Fatalf("list contacts: %d %s", code, env.Msg)
	}
	var grouped map[string][]json.RawMessage
	decode(t, env, &grouped)
	if len(grouped["CUSTOM"]) != 1 {
		t.Fatalf("expected one CUSTOM contact, got %v", grouped)
	}

	if code, _ := s.do(http.MethodPost, "/api/contacts/block", bobTok, map[string]int64{"userId": alice.ID}); code != http.StatusOK {
		t.Fatalf("block: %d", code)
	}
	_, env = s.do(http.MethodGet, "/api/contacts/blocked", bobTok, nil)
	var blocked []struct {
		ID int64 `json:"id"`
	}
	decode(t, env, &blocked)
	if len(blocked) != 1 || blocked[0].ID != alice.ID {
		t.Fatalf("unexpected blocked list %+v", blocked)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	mentor := testutil.CreateUser(t, s.db, "mentor", user.RoleMentor)
	m1 := testutil.CreateUser(t, s.db, "m1", user.RoleMentee)
	m2 := testutil.CreateUser(t, s.db, "m2", user.RoleMentee)

	body := map[string]interface{}{"mentorId": mentor.ID, "menteeIds": []int64{m1.ID, m2.ID}}
	if code, env := s.doAdmin(http.MethodPost, "/api/groups/contacts", body); code != http.StatusOK {
		t.Fatalf("autopopulate: %d %s", code, env.Msg)
	}
	// 重复执行不产生新边
	if code, env := s.doAdmin(http.MethodPost, "/api/groups/contacts", body); code != http.StatusOK {
		t.Fatalf("autopopulate again: %d %s", code, env.Msg)
	}
	groups, err := s.a.Contacts.ListContacts(context.Background(), m1.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total != 2 {
		t.Fatalf("expected mentee to see mentor and peer, got %d contacts", total)
	}

	code, env := s.doAdmin(http.MethodGet, fmt.Sprintf("/api/presence/%d", mentor.ID), nil)
	if code != http.StatusOK {
		t.Fatalf("presence: %d %s", code, env.Msg)
	}

	rec := httptest.NewRecorder()
	s.admin.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("go_goroutines")) {
		t.Fatalf("metrics endpoint: %d", rec.Code)
	}
}

// stubRedis 内存版 GET/SETEX/DEL
func stubRedis() (radix.Conn, func() int) {
	var mu sync.Mutex
	store := make(map[string]string)
	conn := radix.Stub("tcp", "127.0.0.1:6379", func(args []string) interface{} {
		mu.Lock()
		defer mu.Unlock()
		switch strings.ToUpper(args[0]) {
		case "GET":
			if v, ok := store[args[1]]; ok {
				return v
			}
			return nil
		case "SETEX":
			store[args[1]] = args[3]
			return "OK"
		case "DEL":
			if _, ok := store[args[1]]; ok {
				delete(store, args[1])
				return 1
			}
			return 0
		}
		return fmt.Errorf("ERR unknown command %s", args[0])
	})
	size := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(store)
	}
	return conn, size
}

func TestAdminEvictsCachedToken(t *testing.T) {
	conn, cached := stubRedis()
	s := newTestServerWithRedis(t, conn)
	u := testutil.CreateUser(t, s.db, "mentee", user.RoleMentee)
	tok := s.token(u)

	if code, env := s.do(http.MethodGet, "/api/contacts", tok, nil); code != http.StatusOK {
		t.Fatalf("list contacts: %d %q", code, env.Msg)
	}
	if n := cached(); n != 1 {
		t.Fatalf("expected the verified token to be cached, got %d entries", n)
	}

	if code, env := s.doAdmin(http.MethodPost, "/api/auth/token-cache/evict", map[string]string{"token": "Bearer " + tok}); code != http.StatusOK || env.Code != 0 {
		t.Fatalf("evict: %d %+v", code, env)
	}
	if n := cached(); n != 0 {
		t.Fatalf("expected cache entry to be removed, got %d", n)
	}
	if code, _ := s.doAdmin(http.MethodPost, "/api/auth/token-cache/evict", map[string]string{"token": ""}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing token, got %d", code)
	}

	// 令牌本身仍有效，下一次请求重新验签并写回缓存
	if code, _ := s.do(http.MethodGet, "/api/contacts", tok, nil); code != http.StatusOK {
		t.Fatalf("list after evict: %d", code)
	}
	if n := cached(); n != 1 {
		t.Fatalf("expected token to be cached again, got %d", n)
	}
}
