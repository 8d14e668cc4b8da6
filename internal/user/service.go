package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ovaphlow/pitchfork/service-tasks-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-tasks-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/apperr"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/utilities"
	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/validation"
)

// MinPasswordLength is enforced before any password reaches the hasher.
const MinPasswordLength = 8

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

// fallbackDummyHash is a well-formed cost-10 bcrypt hash matching no password.
// It stands in when the hasher cannot produce a dummy hash of its own.
const fallbackDummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

var (
	errUserExists       = apperr.Conflict("user already exists")
	errEmailInUse       = apperr.Conflict("email already in use by another account")
	errCurrentIncorrect = apperr.New(apperr.CodeInvalidCredentials, "current password incorrect")
	errUserNotFound     = apperr.NotFound("user not found")
)

// UserService is the credential store: registration, login and profile changes.
type UserService struct {
	repo     *userrepo.UserRepo
	hasher   PasswordHasher
	ids      *utilities.IDGenerator
	validate *validator.Validate
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(r *userrepo.UserRepo, hasher PasswordHasher, ids *utilities.IDGenerator) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{
		repo:     r,
		hasher:   hasher,
		ids:      ids,
		validate: validation.New(),
		now:      time.Now,
	}
}

type registerInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// Register creates a user. The returned user carries the hash; callers expose Public() only.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*entity.User, error) {
	in := registerInput{Name: strings.TrimSpace(name), Email: normalizeEmail(email), Password: password}
	if err := validation.Struct(s.validate, in); err != nil {
		return nil, err
	}
	if err := checkPasswordBytes(password); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, errUserExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	u := &entity.User{
		ID:           s.ids.Next(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			// lost a race with a concurrent signup for the same email
			return nil, errUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate checks email and password. Unknown email and wrong password
// produce the same apperr.ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// spend the same bcrypt time as a real comparison
			s.hasher.Verify(s.dummy(), password)
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, apperr.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(u.PasswordHash) {
		if newHash, hErr := s.hasher.Hash(password); hErr == nil {
			if _, uErr := s.repo.UpdatePassword(ctx, u.ID, newHash, s.now()); uErr == nil {
				u.PasswordHash = newHash
			}
		}
	}
	return u, nil
}

// Get resolves a user id.
func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

type profileInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

// UpdateProfile changes name and email of user id. Keeping one's own email is allowed;
// taking another user's is a conflict.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, name, email string) (*entity.User, error) {
	in := profileInput{Name: strings.TrimSpace(name), Email: normalizeEmail(email)}
	if err := validation.Struct(s.validate, in); err != nil {
		return nil, err
	}

	taken, err := s.repo.EmailTakenByOther(ctx, in.Email, id)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return nil, errEmailInUse
	}

	n, err := s.repo.UpdateProfile(ctx, id, in.Name, in.Email, s.now())
	if err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, errEmailInUse
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n == 0 {
		return nil, errUserNotFound
	}
	return s.Get(ctx, id)
}

type passwordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

// ChangePassword replaces the password of user id after checking the current one.
// On any failure the stored hash is left untouched.
func (s *UserService) ChangePassword(ctx context.Context, id int64, current, next string) error {
	if err := validation.Struct(s.validate, passwordInput{CurrentPassword: current, NewPassword: next}); err != nil {
		return err
	}
	if err := checkPasswordBytes(next); err != nil {
		return err
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(u.PasswordHash, current) {
		return errCurrentIncorrect
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	n, err := s.repo.UpdatePassword(ctx, id, hash, s.now())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return errUserNotFound
	}
	return nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash = fallbackDummyHash
		if h, err := s.hasher.Hash("not-a-real-password"); err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func checkPasswordBytes(pw string) error {
	if len(pw) > maxPasswordBytes {
		return apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}
