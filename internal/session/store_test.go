package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/campusdesk/desk/internal/types"
)

type memoryStore struct {
	creds   types.Credentials
	loadErr error
	saves   int
	clears  int
}

func (m *memoryStore) Load() (types.Credentials, error) {
	return m.creds, m.loadErr
}

func (m *memoryStore) Save(creds types.Credentials) error {
	m.creds = creds
	m.saves++
	return nil
}

func (m *memoryStore) Clear() error {
	m.creds = types.Credentials{}
	m.clears++
	return nil
}

// fakeToken builds an unsigned JWT; only the payload matters to the client.
func fakeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return strings.Join([]string{header, body, "c2ln"}, ".")
}

func TestIdentityAdminSources(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		admin  bool
	}{
		{name: "role", claims: map[string]any{"sub": "1", "role": "ADMIN"}, admin: true},
		{name: "roles list", claims: map[string]any{"sub": "1", "roles": []string{"USER", "ADMIN"}}, admin: true},
		{name: "isAdmin flag", claims: map[string]any{"sub": "1", "isAdmin": true}, admin: true},
		{name: "user role", claims: map[string]any{"sub": "1", "role": "USER"}, admin: false},
		{name: "isAdmin string", claims: map[string]any{"sub": "1", "isAdmin": "true"}, admin: true},
		{name: "isAdmin number", claims: map[string]any{"sub": "1", "isAdmin": 1}, admin: true},
		{name: "isAdmin false", claims: map[string]any{"sub": "1", "isAdmin": false}, admin: false},
		{name: "isAdmin string false", claims: map[string]any{"sub": "1", "isAdmin": "false"}, admin: false},
		{name: "isAdmin zero", claims: map[string]any{"sub": "1", "isAdmin": 0}, admin: false},
		{name: "lowercase role", claims: map[string]any{"sub": "1", "role": "admin"}, admin: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := IdentityFromToken(fakeToken(t, tt.claims))
			if identity.IsAdmin != tt.admin {
				t.Fatalf("admin: got %v want %v", identity.IsAdmin, tt.admin)
			}
		})
	}
}

func TestIdentityClaimPrecedence(t *testing.T) {
	token := fakeToken(t, map[string]any{
		"sub":         "sub-7",
		"userId":      42,
		"username":    "kim",
		"email":       "kim@school.ac.kr",
		"student_num": "2023001",
	})
	identity := IdentityFromToken(token)
	want := types.Identity{
		ID:         "42",
		Name:       "kim",
		Email:      "kim@school.ac.kr",
		StudentNum: "2023001",
	}
	if identity != want {
		t.Fatalf("got %+v want %+v", identity, want)
	}

	identity = IdentityFromToken(fakeToken(t, map[string]any{"sub": "9", "email": "lee@school.ac.kr"}))
	if identity.ID != "9" || identity.Name != "lee@school.ac.kr" {
		t.Fatalf("fallbacks not applied: %+v", identity)
	}
}

func TestMalformedTokenIsAnonymous(t *testing.T) {
	for _, token := range []string{"", "not-a-token", "a.b.c", "a.!!!.c"} {
		if identity := IdentityFromToken(token); !identity.Anonymous() {
			t.Fatalf("%q: expected anonymous, got %+v", token, identity)
		}
	}
}

func TestNewRehydrates(t *testing.T) {
	token := fakeToken(t, map[string]any{"userId": 5, "name": "park"})
	store := &memoryStore{creds: types.Credentials{AccessToken: token, RefreshToken: "r"}}
	s := New(store)
	if got := s.Identity(); got.ID != "5" || got.Name != "park" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if !s.Authenticated() {
		t.Fatal("expected authenticated")
	}

	broken := New(&memoryStore{loadErr: errors.New("disk gone")})
	if !broken.Identity().Anonymous() || broken.Authenticated() {
		t.Fatal("load failure should leave session anonymous")
	}

	garbage := New(&memoryStore{creds: types.Credentials{AccessToken: "garbage"}})
	if !garbage.Identity().Anonymous() {
		t.Fatalf("malformed stored token should be anonymous, got %+v", garbage.Identity())
	}
}

func TestLoginLogout(t *testing.T) {
	store := &memoryStore{}
	s := New(store)
	if _, err := s.TokenSource().Token(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	token := fakeToken(t, map[string]any{"userId": 11, "role": "ADMIN"})
	if err := s.Login(types.Credentials{AccessToken: token, RefreshToken: "r"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("expected one save, got %d", store.saves)
	}
	if !s.Identity().IsAdmin || s.Identity().ID != "11" {
		t.Fatalf("unexpected identity: %+v", s.Identity())
	}
	tok, err := s.TokenSource().Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.AccessToken != token || tok.Type() != "Bearer" {
		t.Fatalf("unexpected token: %+v", tok)
	}

	if err := s.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !s.Identity().Anonymous() || store.clears != 1 {
		t.Fatalf("logout did not clear: %+v clears=%d", s.Identity(), store.clears)
	}
	if _, err := s.AccessToken(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated after logout, got %v", err)
	}
}

func TestUpdateUserInfoKeepsCredential(t *testing.T) {
	token := fakeToken(t, map[string]any{"userId": 3, "name": "old"})
	store := &memoryStore{creds: types.Credentials{AccessToken: token}}
	s := New(store)

	name := "new"
	s.UpdateUserInfo(ProfileUpdate{Name: &name})
	if s.Identity().Name != "new" || s.Identity().ID != "3" {
		t.Fatalf("unexpected identity: %+v", s.Identity())
	}
	if s.Credentials().AccessToken != token || store.saves != 0 {
		t.Fatal("credential should be untouched")
	}
}
