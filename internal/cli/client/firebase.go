package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultIdentityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultSecureTokenURL     = "https://securetoken.googleapis.com/v1"
)

// FirebaseAuth signs users in with email and password through the Firebase
// Auth REST API and refreshes their ID tokens.
type FirebaseAuth struct {
	APIKey             string
	IdentityToolkitURL string
	SecureTokenURL     string
	HTTPClient         *http.Client
	Now                func() time.Time
}

func NewFirebaseAuth(apiKey string) *FirebaseAuth {
	return &FirebaseAuth{
		APIKey:             apiKey,
		IdentityToolkitURL: DefaultIdentityToolkitURL,
		SecureTokenURL:     DefaultSecureTokenURL,
		HTTPClient:         &http.Client{Timeout: 30 * time.Second},
		Now:                time.Now,
	}
}

// Credentials is a provider session: the ID token sent to the LearnHub API
// and the refresh token used to renew it.
type Credentials struct {
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
	UID          string
	Email        string
}

// FirebaseError carries the message code Firebase returns, e.g. EMAIL_EXISTS.
type FirebaseError struct {
	Status  int
	Message string
}

func (e *FirebaseError) Error() string {
	return fmt.Sprintf("firebase: %d: %s", e.Status, e.Message)
}

type passwordAuthResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

func (f *FirebaseAuth) SignUp(email, password string) (*Credentials, error) {
	return f.passwordAuth("accounts:signUp", email, password)
}

func (f *FirebaseAuth) SignIn(email, password string) (*Credentials, error) {
	return f.passwordAuth("accounts:signInWithPassword", email, password)
}

func (f *FirebaseAuth) passwordAuth(method, email, password string) (*Credentials, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s?key=%s", strings.TrimRight(f.IdentityToolkitURL, "/"), method, url.QueryEscape(f.APIKey))
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out passwordAuthResponse
	if err := f.do(req, &out); err != nil {
		return nil, err
	}
	return &Credentials{
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    f.expiry(out.ExpiresIn),
		UID:          out.LocalID,
		Email:        out.Email,
	}, nil
}

// Refresh exchanges a refresh token for a new ID token.
func (f *FirebaseAuth) Refresh(refreshToken string) (*Credentials, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	endpoint := fmt.Sprintf("%s/token?key=%s", strings.TrimRight(f.SecureTokenURL, "/"), url.QueryEscape(f.APIKey))
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out refreshResponse
	if err := f.do(req, &out); err != nil {
		return nil, err
	}
	return &Credentials{
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    f.expiry(out.ExpiresIn),
		UID:          out.UserID,
	}, nil
}

func (f *FirebaseAuth) do(req *http.Request, out interface{}) error {
	if f.APIKey == "" {
		return fmt.Errorf("firebase api key is not configured")
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
			return &FirebaseError{Status: resp.StatusCode, Message: errResp.Error.Message}
		}
		return &FirebaseError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (f *FirebaseAuth) expiry(expiresIn string) time.Time {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}
	return f.Now().Add(time.Duration(seconds) * time.Second)
}
