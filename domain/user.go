package domain

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	// bcrypt rejects longer inputs.
	maxPasswordLength = 72
)

// User is a managed account. PasswordHash never leaves the service.
type User struct {
	CC           string `json:"cc"`
	Email        string `json:"email"`
	UserName     string `json:"userName"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// NewUser is the create request of an account.
type NewUser struct {
	CC       string `json:"cc"`
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// UserUpdate carries the editable fields of an account.
type UserUpdate struct {
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Role     string `json:"role"`
}

// UserRepository persists accounts.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, cc string) (User, error)
	CreateUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, cc string) error
}

// UserService is the ADMIN-only account management.
type UserService struct {
	repo UserRepository
	log  *log.Logger
	cost int
}

func NewUserService(repo UserRepository, logger *log.Logger) *UserService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &UserService{repo: repo, log: logger, cost: bcrypt.DefaultCost}
}

// List returns the accounts matching search. ADMIN only.
func (s *UserService) List(ctx context.Context, actor Actor, search string) ([]User, error) {
	if NormalizeRole(actor.Role) != RoleAdmin {
		return nil, ErrForbidden
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return users, nil
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		for _, f := range []string{u.CC, u.Email, u.UserName, u.Role} {
			if strings.Contains(strings.ToLower(f), term) {
				out = append(out, u)
				break
			}
		}
	}
	return out, nil
}

// Create validates and stores a new account with a bcrypt password hash.
func (s *UserService) Create(ctx context.Context, actor Actor, nu NewUser) (User, error) {
	if NormalizeRole(actor.Role) != RoleAdmin {
		return User{}, ErrForbidden
	}
	u := User{CC: strings.TrimSpace(nu.CC)}
	if !isDigits(u.CC) {
		return User{}, fmt.Errorf("%w: cc must contain only digits", ErrInvalidInput)
	}
	if err := applyUserFields(&u, UserUpdate{Email: nu.Email, UserName: nu.UserName, Role: nu.Role}); err != nil {
		return User{}, err
	}
	if len(nu.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if len(nu.Password) > maxPasswordLength {
		return User{}, fmt.Errorf("%w: password must have at most %d bytes", ErrInvalidInput, maxPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return User{}, fmt.Errorf("create user %s: %w", u.CC, err)
	}
	s.log.WithFields(log.Fields{"user": u.CC, "role": u.Role}).Info("user created")
	return u, nil
}

// Update replaces email, userName and role of an account.
func (s *UserService) Update(ctx context.Context, actor Actor, cc string, upd UserUpdate) (User, error) {
	if NormalizeRole(actor.Role) != RoleAdmin {
		return User{}, ErrForbidden
	}
	u, err := s.repo.GetUser(ctx, strings.TrimSpace(cc))
	if err != nil {
		return User{}, err
	}
	if err := applyUserFields(&u, upd); err != nil {
		return User{}, err
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return User{}, fmt.Errorf("update user %s: %w", u.CC, err)
	}
	return u, nil
}

// Delete removes an account.
func (s *UserService) Delete(ctx context.Context, actor Actor, cc string) error {
	if NormalizeRole(actor.Role) != RoleAdmin {
		return ErrForbidden
	}
	if err := s.repo.DeleteUser(ctx, strings.TrimSpace(cc)); err != nil {
		return fmt.Errorf("delete user %s: %w", cc, err)
	}
	s.log.WithField("user", cc).Info("user deleted")
	return nil
}

func applyUserFields(u *User, upd UserUpdate) error {
	email := strings.TrimSpace(upd.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	name := strings.TrimSpace(upd.UserName)
	if name == "" {
		return fmt.Errorf("%w: userName is required", ErrInvalidInput)
	}
	role := NormalizeRole(upd.Role)
	if !role.Known() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, upd.Role)
	}
	u.Email, u.UserName, u.Role = email, name, role.String()
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
