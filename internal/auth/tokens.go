package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/oauth2"
)

// TokenStore keeps one OAuth token per Spotify application in a single
// JSON file. Entries are keyed by client id, so pointing the ranker at a
// different application never reuses a token another one issued.
type TokenStore struct {
	path     string
	clientID string
}

// storedToken is one entry of the token file. Scopes records what was
// requested when the token was issued.
type storedToken struct {
	Token   *oauth2.Token `json:"token"`
	Scopes  []string      `json:"scopes"`
	SavedAt time.Time     `json:"saved_at"`
}

// NewTokenStore returns the store for clientID backed by the file at path.
func NewTokenStore(path, clientID string) *TokenStore {
	return &TokenStore{path: path, clientID: clientID}
}

// Path is the backing file.
func (s *TokenStore) Path() string { return s.path }

// Load returns the token saved for this client, or nil when there is none.
// A token issued for fewer scopes than Scopes also counts as missing, so a
// scope change forces a new consent.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	entry, ok := entries[s.clientID]
	if !ok || entry.Token == nil {
		return nil, nil
	}
	for _, scope := range Scopes {
		if !slices.Contains(entry.Scopes, scope) {
			return nil, nil
		}
	}
	return entry.Token, nil
}

// Save records token for this client, keeping other clients' entries.
func (s *TokenStore) Save(token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}
	entries, err := s.read()
	if err != nil {
		return err
	}
	entries[s.clientID] = storedToken{
		Token:   token,
		Scopes:  slices.Clone(Scopes),
		SavedAt: time.Now().UTC(),
	}
	return s.write(entries)
}

// Delete drops this client's token. The file goes away with its last
// entry. Deleting a token that is not there is not an error.
func (s *TokenStore) Delete() error {
	entries, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := entries[s.clientID]; !ok {
		return nil
	}
	delete(entries, s.clientID)
	if len(entries) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing token file: %w", err)
		}
		return nil
	}
	return s.write(entries)
}

func (s *TokenStore) read() (map[string]storedToken, error) {
	entries := map[string]storedToken{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", s.path, err)
	}
	return entries, nil
}

// write replaces the file through a rename so a crash never leaves a
// half-written token file behind.
func (s *TokenStore) write(entries map[string]storedToken) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}
