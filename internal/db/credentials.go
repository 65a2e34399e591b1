package db

import (
	"database/sql"

	"github.com/campusdesk/desk/internal/types"
)

const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
	// LastThreadKey remembers the thread the chat screen had open.
	LastThreadKey = "last_thread"
)

// CredentialStore keeps the token pair in desk_config.
type CredentialStore struct {
	db *sql.DB
}

// NewCredentialStore wraps an open database.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Load returns the stored pair; both fields are empty when nothing is stored.
func (s *CredentialStore) Load() (types.Credentials, error) {
	access, err := GetConfig(s.db, accessTokenKey)
	if err != nil {
		return types.Credentials{}, err
	}
	refresh, err := GetConfig(s.db, refreshTokenKey)
	if err != nil {
		return types.Credentials{}, err
	}
	return types.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// Save replaces the stored pair.
func (s *CredentialStore) Save(creds types.Credentials) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := SetConfig(tx, accessTokenKey, creds.AccessToken); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := SetConfig(tx, refreshTokenKey, creds.RefreshToken); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Clear removes the stored pair.
func (s *CredentialStore) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, key := range []string{accessTokenKey, refreshTokenKey} {
		if err := DeleteConfig(tx, key); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
