// Package session persists the CLI's signed-in state between invocations.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

const (
	dirName    = "learnhub"
	fileName   = "session.json"
	dirPerms   = 0700
	filePerms  = 0600
	DefaultURL = "http://localhost:8080"

	// DirEnv overrides the directory the session file lives in.
	DirEnv = "LEARNHUB_CONFIG_DIR"
)

// User is the part of the local user record the CLI keeps between runs.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// Session mirrors the browser auth context: the provider session (tokens)
// and the local user it resolved to.
type Session struct {
	ServerURL      string    `json:"server_url"`
	FirebaseAPIKey string    `json:"firebase_api_key,omitempty"`
	Token          string    `json:"token,omitempty"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
	User           *User     `json:"user,omitempty"`
}

// Path returns the full path to the session file.
func Path() (string, error) {
	if dir := os.Getenv(DirEnv); dir != "" {
		return filepath.Join(dir, fileName), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName, fileName), nil
}

// Load reads the session from disk. A missing file yields an empty session.
func Load() (*Session, error) {
	p, err := Path()
	if err != nil {
		return &Session{ServerURL: DefaultURL}, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Session{ServerURL: DefaultURL}, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.ServerURL == "" {
		s.ServerURL = DefaultURL
	}
	return &s, nil
}

// Save writes the session to disk, creating the directory if needed.
func Save(s *Session) error {
	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerms); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, filePerms)
}

// Clear removes the session file.
func Clear() error {
	p, err := Path()
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Session) HasToken() bool {
	return s.Token != ""
}

// NeedsRefresh reports whether the ID token expires within a minute and a
// refresh token is available to replace it.
func (s *Session) NeedsRefresh(now time.Time) bool {
	if s.RefreshToken == "" || s.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(time.Minute).After(s.ExpiresAt)
}

// SignOut drops tokens and user but keeps server settings.
func (s *Session) SignOut() {
	s.Token = ""
	s.RefreshToken = ""
	s.ExpiresAt = time.Time{}
	s.User = nil
}
