package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/apperr"
)

func TestFail(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{apperr.Validation("title is required"), http.StatusBadRequest, "title is required"},
		{apperr.Conflict("user already exists"), http.StatusConflict, "user already exists"},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{apperr.NotFound("task not found"), http.StatusNotFound, "task not found"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "server error"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		Fail(rec, zap.NewNop().Sugar(), c.err)
		if rec.Code != c.status {
			t.Fatalf("%v: expected %d, got %d", c.err, c.status, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("unexpected content type %q", ct)
		}
		var env Envelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Success || env.Message != c.msg {
			t.Fatalf("%v: unexpected envelope %+v", c.err, env)
		}
	}
}

func TestDecode(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	decode := func(body string) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return Decode(httptest.NewRecorder(), req, &dst)
	}

	if err := decode(`{"name":"Ann"}` + "\n"); err != nil || dst.Name != "Ann" {
		t.Fatalf("decode: %v %+v", err, dst)
	}
	oversized := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	cases := []struct{ body, msg string }{
		{"", "request body is empty"},
		{"{", "invalid request body"},
		{oversized, "invalid request body"},
		{`{"name":"Ann"} garbage`, "invalid request body"},
		{`{"name":"Ann"}{"name":"Bob"}`, "invalid request body"},
		{`{"name":"Ann"} }`, "invalid request body"},
	}
	for _, c := range cases {
		err := decode(c.body)
		if !errors.Is(err, apperr.ErrValidation) || apperr.PublicMessage(err) != c.msg {
			t.Fatalf("body of %d bytes: expected %q, got %v", len(c.body), c.msg, err)
		}
	}
}
