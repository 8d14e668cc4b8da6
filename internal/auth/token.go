package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the fixed lifetime of an issued token.
const TokenTTL = 24 * time.Hour

var (
	// ErrMissingSecret means the service was built without a signing secret.
	ErrMissingSecret = errors.New("token signing secret is empty")
	// ErrInvalidToken covers bad signature, malformed structure and expiry alike.
	ErrInvalidToken = errors.New("token invalid or expired")
)

// Claims are the signed token contents: subject, issued-at and expires-at.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens. The secret is fixed at
// construction and never changes for the life of the service.
type TokenService struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	s := &TokenService{secret: append([]byte(nil), secret...), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// Issue signs a token for userID valid for TokenTTL from now.
func (s *TokenService) Issue(userID int64) (string, Claims, error) {
	now := s.now().Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

// Verify checks signature and expiry and returns the subject's user id.
// Every failure is ErrInvalidToken.
func (s *TokenService) Verify(token string) (int64, error) {
	var claims Claims
	tkn, err := s.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !tkn.Valid {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
