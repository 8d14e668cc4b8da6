package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/apperr"
)

// Rejection messages, one per failed guard state.
const (
	MsgTokenMissing = "token missing"
	MsgTokenInvalid = "token invalid or expired"
	MsgUserNotFound = "user not found"
)

// UserLookup resolves a token subject to a stored user.
type UserLookup interface {
	Get(ctx context.Context, id int64) (*entity.User, error)
}

type ctxKey struct{}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	ID    int64
	Name  string
	Email string
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the identity set by Guard.Require.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Guard authenticates requests: bearer token, signature and expiry, then the user row.
// It reads only; nothing is written on any path.
type Guard struct {
	tokens *TokenService
	users  UserLookup
	logger *zap.SugaredLogger
}

func NewGuard(tokens *TokenService, users UserLookup, logger *zap.SugaredLogger) *Guard {
	return &Guard{tokens: tokens, users: users, logger: logger}
}

// Require wraps next so it only runs for authenticated requests.
func (g *Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			g.reject(w, r, "missing", MsgTokenMissing)
			return
		}
		uid, err := g.tokens.Verify(raw)
		if err != nil {
			g.reject(w, r, "invalid", MsgTokenInvalid)
			return
		}
		u, err := g.users.Get(r.Context(), uid)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				g.reject(w, r, "unknown_user", MsgUserNotFound)
				return
			}
			httpx.Fail(w, g.logger, err)
			return
		}
		ctx := WithIdentity(r.Context(), Identity{ID: u.ID, Name: u.Name, Email: u.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, reason, msg string) {
	metrics.AuthRejections.WithLabelValues(reason).Inc()
	g.logger.Debugw("auth rejected", "reason", reason, "path", r.URL.Path)
	httpx.Fail(w, g.logger, apperr.New(apperr.CodeUnauthenticated, msg))
}

// bearerToken extracts <token> from "Bearer <token>".
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
