package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/oauth2"

	"github.com/campusdesk/desk/internal/types"
)

// ErrNotAuthenticated is returned when an operation needs a stored access token.
var ErrNotAuthenticated = errors.New("login required: run 'desk login'")

// CredentialStore persists the token pair between runs.
type CredentialStore interface {
	Load() (types.Credentials, error)
	Save(types.Credentials) error
	Clear() error
}

// Store holds the current credentials and the Identity derived from them.
type Store struct {
	mu       sync.RWMutex
	store    CredentialStore
	creds    types.Credentials
	identity types.Identity
}

// New rehydrates from store. Missing or unreadable credentials leave the
// session anonymous.
func New(store CredentialStore) *Store {
	s := &Store{store: store}
	if store == nil {
		return s
	}
	creds, err := store.Load()
	if err != nil || creds.AccessToken == "" {
		return s
	}
	s.creds = creds
	s.identity = IdentityFromToken(creds.AccessToken)
	return s
}

// Login stores the pair and derives Identity from the access token.
func (s *Store) Login(creds types.Credentials) error {
	if creds.AccessToken == "" {
		return fmt.Errorf("login response carried no access token")
	}
	if s.store != nil {
		if err := s.store.Save(creds); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.identity = IdentityFromToken(creds.AccessToken)
	return nil
}

// Logout clears the stored pair and Identity.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.creds = types.Credentials{}
	s.identity = types.Identity{}
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// ProfileUpdate carries the Identity fields UpdateUserInfo may change.
// Nil fields are left alone.
type ProfileUpdate struct {
	Name       *string
	Email      *string
	StudentNum *string
}

// UpdateUserInfo patches Identity without touching the credential.
func (s *Store) UpdateUserInfo(update ProfileUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update.Name != nil {
		s.identity.Name = *update.Name
	}
	if update.Email != nil {
		s.identity.Email = *update.Email
	}
	if update.StudentNum != nil {
		s.identity.StudentNum = *update.StudentNum
	}
}

// ApplyProfile copies a server profile into Identity.
func (s *Store) ApplyProfile(profile types.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := profile.EffectiveID(); id != 0 {
		s.identity.ID = strconv.FormatInt(id, 10)
	}
	if profile.Name != "" {
		s.identity.Name = profile.Name
	}
	if profile.Email != "" {
		s.identity.Email = profile.Email
	}
	if profile.StudentNum != 0 {
		s.identity.StudentNum = strconv.FormatInt(profile.StudentNum, 10)
	}
}

// Identity returns the current identity.
func (s *Store) Identity() types.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Credentials returns the current pair.
func (s *Store) Credentials() types.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Authenticated reports whether an access token is held.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken != ""
}

// AccessToken returns the bearer token or ErrNotAuthenticated.
func (s *Store) AccessToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	return s.creds.AccessToken, nil
}

// TokenSource exposes the current access token to oauth2 transports. It reads
// the store on every call, so a logout takes effect on the next request.
func (s *Store) TokenSource() oauth2.TokenSource {
	return tokenSource{store: s}
}

type tokenSource struct {
	store *Store
}

func (t tokenSource) Token() (*oauth2.Token, error) {
	access, err := t.store.AccessToken()
	if err != nil {
		return nil, err
	}
	creds := t.store.Credentials()
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}
