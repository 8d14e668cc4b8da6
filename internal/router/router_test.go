package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/task"
	taskrepo "github.com/ovaphlow/pitchfork/service-tasks-go/internal/task/repo"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/testkit"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-tasks-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/utilities"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	db := testkit.OpenSQLite(t)
	users := userrepo.NewUserRepo(db)
	tasks := taskrepo.NewTaskRepo(db)
	if err := users.EnsureTable(ctx); err != nil {
		t.Fatalf("ensure users: %v", err)
	}
	if err := tasks.EnsureTable(ctx); err != nil {
		t.Fatalf("ensure tasks: %v", err)
	}
	ids, err := utilities.NewIDGenerator(1)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	tokens, err := auth.NewTokenService([]byte("router-test-secret"))
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	logger := zap.NewNop().Sugar()
	userSvc := user.NewUserService(users, user.BcryptHasher{Cost: bcrypt.MinCost}, ids)
	return RegisterRoutes(logger, Deps{
		Guard: auth.NewGuard(tokens, userSvc, logger),
		Users: user.NewHandler(userSvc, tokens, logger),
		Tasks: task.NewHandler(task.NewService(tasks, ids), logger),
	})
}

type apiResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
	User    struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
	Task struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Priority string `json:"priority"`
		DueDate  string `json:"dueDate"`
		Owner    string `json:"owner"`
	} `json:"task"`
	Tasks []json.RawMessage `json:"tasks"`
}

func call(t *testing.T, h http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, apiResult) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var res apiResult
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, res
}

func TestOwnershipScenario(t *testing.T) {
	h := newTestHandler(t)

	rec, ann := call(t, h, http.MethodPost, "/api/user/register", "", `{"name":"Ann","email":"ann@x.com","password":"password1"}`)
	if rec.Code != http.StatusCreated || !ann.Success || ann.Token == "" {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "$2") || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("credential material in response: %s", rec.Body.String())
	}

	rec, res := call(t, h, http.MethodPost, "/api/user/login", "", `{"email":"ann@x.com","password":"wrong"}`)
	if rec.Code != http.StatusUnauthorized || res.Success || res.Token != "" {
		t.Fatalf("wrong password: %d %s", rec.Code, rec.Body.String())
	}

	rec, login := call(t, h, http.MethodPost, "/api/user/login", "", `{"email":"ann@x.com","password":"password1"}`)
	if rec.Code != http.StatusOK || login.Token == "" || login.User.ID != ann.User.ID {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	annToken := login.Token

	rec, created := call(t, h, http.MethodPost, "/api/tasks", annToken, `{"title":"Buy milk","priority":"Low","dueDate":"2025-06-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: %d %s", rec.Code, rec.Body.String())
	}
	if created.Task.Owner != ann.User.ID || created.Task.DueDate != "2025-06-01T00:00:00Z" {
		t.Fatalf("unexpected task %+v", created.Task)
	}

	rec, bob := call(t, h, http.MethodPost, "/api/user/register", "", `{"name":"Bob","email":"bob@x.com","password":"password2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register bob: %d %s", rec.Code, rec.Body.String())
	}

	taskPath := "/api/tasks/" + created.Task.ID
	for _, m := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPut, `{"title":"mine now"}`},
		{http.MethodDelete, ""},
	} {
		rec, res := call(t, h, m.method, taskPath, bob.Token, m.body)
		if rec.Code != http.StatusNotFound || res.Task.ID != "" {
			t.Fatalf("%s as bob: %d %s", m.method, rec.Code, rec.Body.String())
		}
	}

	rec, list := call(t, h, http.MethodGet, "/api/tasks", bob.Token, "")
	if rec.Code != http.StatusOK || len(list.Tasks) != 0 {
		t.Fatalf("bob list: %d %s", rec.Code, rec.Body.String())
	}

	rec, got := call(t, h, http.MethodGet, taskPath, annToken, "")
	if rec.Code != http.StatusOK || got.Task.Title != "Buy milk" {
		t.Fatalf("ann get: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUserEndpoints(t *testing.T) {
	h := newTestHandler(t)
	_, ann := call(t, h, http.MethodPost, "/api/user/register", "", `{"name":"Ann","email":"ann@x.com","password":"password1"}`)
	call(t, h, http.MethodPost, "/api/user/register", "", `{"name":"Bob","email":"bob@x.com","password":"password2"}`)

	rec, me := call(t, h, http.MethodGet, "/api/user/me", ann.Token, "")
	if rec.Code != http.StatusOK || me.User.Name != "Ann" || me.User.Email != "ann@x.com" {
		t.Fatalf("me: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = call(t, h, http.MethodPost, "/api/user/register", "", `{"name":"Ann2","email":"ann@x.com","password":"password1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = call(t, h, http.MethodPut, "/api/user/profile", ann.Token, `{"name":"Ann","email":"bob@x.com"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("taken email: %d %s", rec.Code, rec.Body.String())
	}
	rec, prof := call(t, h, http.MethodPut, "/api/user/profile", ann.Token, `{"name":"Ann B","email":"ann@x.com"}`)
	if rec.Code != http.StatusOK || prof.User.Name != "Ann B" {
		t.Fatalf("profile: %d %s", rec.Code, rec.Body.String())
	}

	rec, res := call(t, h, http.MethodPut, "/api/user/password", ann.Token, `{"currentPassword":"nope-nope","newPassword":"password9"}`)
	if rec.Code != http.StatusBadRequest || res.Message != "current password incorrect" {
		t.Fatalf("wrong current password: %d %s", rec.Code, rec.Body.String())
	}
	rec, res = call(t, h, http.MethodPut, "/api/user/password", ann.Token, `{"currentPassword":"password1","newPassword":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: %d %s", rec.Code, rec.Body.String())
	}
	rec, res = call(t, h, http.MethodPut, "/api/user/password", ann.Token, `{"currentPassword":"password1","newPassword":"password9"}`)
	if rec.Code != http.StatusOK || res.Message != "password changed" {
		t.Fatalf("change password: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = call(t, h, http.MethodPost, "/api/user/login", "", `{"email":"ann@x.com","password":"password1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password still works: %d", rec.Code)
	}
	rec, _ = call(t, h, http.MethodPost, "/api/user/login", "", `{"email":"ann@x.com","password":"password9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("new password rejected: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	h := newTestHandler(t)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/user/me"},
		{http.MethodPut, "/api/user/profile"},
		{http.MethodPut, "/api/user/password"},
		{http.MethodGet, "/api/tasks"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodGet, "/api/tasks/1"},
		{http.MethodPut, "/api/tasks/1"},
		{http.MethodDelete, "/api/tasks/1"},
	} {
		rec, res := call(t, h, r.method, r.path, "", "")
		if rec.Code != http.StatusUnauthorized || res.Message != auth.MsgTokenMissing {
			t.Fatalf("%s %s: %d %s", r.method, r.path, rec.Code, rec.Body.String())
		}
	}
}

func TestPlainRoutesAndHeaders(t *testing.T) {
	h := newTestHandler(t)

	rec, _ := call(t, h, http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "API Working" {
		t.Fatalf("root: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("request id not set")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" || rec.Header().Get(requestIDHeader) != "abc123" {
		t.Fatalf("health: %d %q %q", rec.Code, rec.Body.String(), rec.Header().Get(requestIDHeader))
	}

	rec, res := call(t, h, http.MethodGet, "/api/nope", "", "")
	if rec.Code != http.StatusNotFound || res.Message != "route not found" {
		t.Fatalf("unknown route: %d %s", rec.Code, rec.Body.String())
	}

	rec, _ = call(t, h, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("tasks_http_requests_total")) {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("missing Access-Control-Allow-Origin")
	}
}

func TestRegisterRejectsTrailingData(t *testing.T) {
	h := newTestHandler(t)
	rec, res := call(t, h, http.MethodPost, "/api/user/register", "", `{"name":"Ann","email":"ann@x.com","password":"password1"} garbage`)
	if rec.Code != http.StatusBadRequest || res.Message != "invalid request body" || res.Token != "" {
		t.Fatalf("trailing data: %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = call(t, h, http.MethodPost, "/api/user/register", "", `{"name":"Ann","email":"ann@x.com","password":"password1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("user must not exist after rejected body: %d %s", rec.Code, rec.Body.String())
	}
}
