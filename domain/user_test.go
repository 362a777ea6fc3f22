package domain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"
)

func newTestUserService(repo UserRepository) *UserService {
	logger, _ := test.NewNullLogger()
	svc := NewUserService(repo, logger)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestUserServiceCreate(t *testing.T) {
	valid := NewUser{CC: "123", Email: "dev@example.com", UserName: "Dev", Role: "dev", Password: "12345678"}
	tests := []struct {
		name    string
		actor   string
		mutate  func(u *NewUser)
		wantErr error
	}{
		{name: "ok", actor: "ADMIN"},
		{name: "not admin", actor: "SM", wantErr: ErrForbidden},
		{name: "cc not digits", actor: "ADMIN", mutate: func(u *NewUser) { u.CC = "12a" }, wantErr: ErrInvalidInput},
		{name: "bad email", actor: "ADMIN", mutate: func(u *NewUser) { u.Email = "nope" }, wantErr: ErrInvalidInput},
		{name: "display name email", actor: "ADMIN", mutate: func(u *NewUser) { u.Email = "Dev <dev@example.com>" }, wantErr: ErrInvalidInput},
		{name: "missing name", actor: "ADMIN", mutate: func(u *NewUser) { u.UserName = " " }, wantErr: ErrInvalidInput},
		{name: "unknown role", actor: "ADMIN", mutate: func(u *NewUser) { u.Role = "boss" }, wantErr: ErrInvalidInput},
		{name: "short password", actor: "ADMIN", mutate: func(u *NewUser) { u.Password = "1234567" }, wantErr: ErrInvalidInput},
		{name: "password over bcrypt limit", actor: "ADMIN", mutate: func(u *NewUser) { u.Password = strings.Repeat("x", 73) }, wantErr: ErrInvalidInput},
		{name: "password at bcrypt limit", actor: "ADMIN", mutate: func(u *NewUser) { u.Password = strings.Repeat("x", 72) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeUsers{}
			svc := newTestUserService(repo)
			nu := valid
			if tt.mutate != nil {
				tt.mutate(&nu)
			}
			u, err := svc.Create(context.Background(), Actor{Role: tt.actor}, nu)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if u.Role != "DEV" {
				t.Fatalf("role not normalised: %q", u.Role)
			}
			if err := bcrypt.CompareHashAndPassword([]byte(repo.users["123"].PasswordHash), []byte(nu.Password)); err != nil {
				t.Fatalf("stored hash does not match password: %v", err)
			}
		})
	}
}

func TestUserServiceUpdateListDelete(t *testing.T) {
	repo := &fakeUsers{users: map[string]User{
		"1": {CC: "1", Email: "a@example.com", UserName: "Ana", Role: "QA", PasswordHash: "h"},
		"2": {CC: "2", Email: "b@example.com", UserName: "Bob", Role: "DEV"},
	}}
	svc := newTestUserService(repo)
	ctx := context.Background()
	admin := Actor{CC: "0", Role: "admin"}

	u, err := svc.Update(ctx, admin, "1", UserUpdate{Email: "ana@example.com", UserName: "Ana", Role: "po"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if u.Role != "PO" || repo.users["1"].PasswordHash != "h" {
		t.Fatalf("unexpected update %+v", repo.users["1"])
	}
	if _, err := svc.Update(ctx, admin, "9", UserUpdate{Email: "x@example.com", UserName: "X", Role: "QA"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	found, err := svc.List(ctx, admin, "BOB")
	if err != nil || len(found) != 1 || found[0].CC != "2" {
		t.Fatalf("search = %+v, %v", found, err)
	}
	if _, err := svc.List(ctx, Actor{Role: "SM"}, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	if err := svc.Delete(ctx, admin, "2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, admin, "2"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
