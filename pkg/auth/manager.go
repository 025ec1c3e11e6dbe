// Package auth manages DroneMobile bearer tokens.
//
// The DroneMobile mobile and web apps authenticate against an AWS Cognito user pool. A Manager
// performs the same USER_PASSWORD_AUTH flow, persists the resulting tokens with owner-only file
// permissions, and transparently refreshes them when they expire. Clients normally do not use this
// package directly; the account package calls AuthHeader before each API request.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/firstech/drone-command/internal/log"
	"github.com/firstech/drone-command/pkg/protocol"
)

const (
	// DefaultAuthURL is the AWS Cognito endpoint used by the DroneMobile apps.
	DefaultAuthURL = "https://cognito-idp.us-east-1.amazonaws.com/"

	// cognitoClientID identifies the DroneMobile web app to Cognito. Not a secret; it ships in
	// the app's JavaScript bundle.
	cognitoClientID = "3l3gtebtua7qft45b4splbeuiu"

	// expiryMargin is subtracted from the server-reported token lifetime so that a token never
	// expires mid-request.
	expiryMargin = 100 * time.Second

	tokenFileName   = "token.json"
	legacyTokenFile = "drone_mobile_token.txt"
)

var (
	lockRetryInterval = 100 * time.Millisecond
	lockTimeout       = 10 * time.Second
)

const maxAuthResponseLength = 512 * 1024

// Manager fetches, persists, and refreshes tokens for a single DroneMobile account.
//
// All methods are safe for concurrent use. A .lock file next to the token file provides
// cross-process exclusion when multiple clients share a token directory.
type Manager struct {
	Email    string
	Password string

	// AuthURL defaults to DefaultAuthURL.
	AuthURL   string
	UserAgent string

	client   http.Client
	tokenDir string
	token    *Token
	mu       sync.Mutex
}

// NewManager returns a Manager that stores tokens under tokenDir.
//
// If tokenDir is empty, tokens are stored under os.UserConfigDir()/drone-command. The directory is
// created with owner-only permissions if it does not exist.
func NewManager(email, password, tokenDir string) (*Manager, error) {
	if tokenDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("unable to determine token directory: %w", err)
		}
		tokenDir = filepath.Join(configDir, "drone-command")
	}
	if err := os.MkdirAll(tokenDir, 0700); err != nil {
		return nil, fmt.Errorf("unable to create token directory: %w", err)
	}
	// MkdirAll doesn't change permissions on directories that already exist.
	if err := os.Chmod(tokenDir, 0700); err != nil {
		log.Warning("Could not set permissions on %s: %s", tokenDir, err)
	}
	return &Manager{
		Email:    email,
		Password: password,
		AuthURL:  DefaultAuthURL,
		tokenDir: tokenDir,
	}, nil
}

// TokenFile returns the path of the persisted token.
func (m *Manager) TokenFile() string {
	return filepath.Join(m.tokenDir, tokenFileName)
}

// Token returns a valid token, authenticating or refreshing as needed.
func (m *Manager) Token(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireToken(ctx, false)
}

// Refresh discards the current token state and fetches a fresh token. Clients call this after the
// API rejects a request with 401.
func (m *Manager) Refresh(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireToken(ctx, true)
}

// AuthHeader returns the Authorization header value for API requests, authenticating first if
// needed.
func (m *Manager) AuthHeader(ctx context.Context) (string, error) {
	token, err := m.Token(ctx)
	if err != nil {
		return "", err
	}
	return token.AuthHeader(), nil
}

// Invalidate discards the in-memory token and removes the token file.
func (m *Manager) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	err := os.Remove(m.TokenFile())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (m *Manager) acquireToken(ctx context.Context, force bool) (*Token, error) {
	if !force {
		if m.token != nil && !m.token.Expired() {
			return m.token, nil
		}
		if m.token == nil {
			if token, err := m.loadToken(); err != nil {
				log.Debug("Could not load token: %s", err)
			} else if token != nil {
				m.token = token
			}
		}
		if m.token != nil && !m.token.Expired() {
			log.Debug("Loaded valid token from %s", m.TokenFile())
			return m.token, nil
		}
	}
	if m.token != nil && m.token.RefreshToken != "" {
		log.Debug("Token expired, refreshing")
		return m.refresh(ctx)
	}
	return m.login(ctx)
}

// initiateAuthRequest is the Cognito InitiateAuth wire format.
type initiateAuthRequest struct {
	AuthFlow       string            `json:"AuthFlow"`
	ClientID       string            `json:"ClientId"`
	AuthParameters map[string]string `json:"AuthParameters"`
	ClientMetadata map[string]string `json:"ClientMetadata,omitempty"`
}

type authenticationResult struct {
	AccessToken  string `json:"AccessToken"`
	IDToken      string `json:"IdToken"`
	RefreshToken string `json:"RefreshToken"`
	TokenType    string `json:"TokenType"`
	ExpiresIn    int    `json:"ExpiresIn"`
}

type initiateAuthResponse struct {
	AuthenticationResult authenticationResult `json:"AuthenticationResult"`
}

type cognitoError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (m *Manager) login(ctx context.Context) (*Token, error) {
	log.Debug("Performing new authentication")
	request := initiateAuthRequest{
		AuthFlow: "USER_PASSWORD_AUTH",
		ClientID: cognitoClientID,
		AuthParameters: map[string]string{
			"USERNAME": m.Email,
			"PASSWORD": m.Password,
		},
		ClientMetadata: map[string]string{},
	}

	status, body, err := m.initiateAuth(ctx, &request)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		token, err := parseAuthResult(body, "")
		if err != nil {
			return nil, &protocol.AuthenticationError{Err: err}
		}
		m.setToken(token)
		log.Info("Successfully authenticated")
		return token, nil
	case http.StatusBadRequest:
		var cErr cognitoError
		if json.Unmarshal(body, &cErr) == nil && strings.Contains(cErr.Type, "NotAuthorizedException") {
			return nil, protocol.ErrInvalidCredentials
		}
		return nil, &protocol.AuthenticationError{Err: &protocol.HTTPError{Code: status, Message: string(body)}}
	default:
		return nil, &protocol.AuthenticationError{Err: &protocol.HTTPError{Code: status, Message: string(body)}}
	}
}

func (m *Manager) refresh(ctx context.Context) (*Token, error) {
	if m.token == nil || m.token.RefreshToken == "" {
		return nil, protocol.ErrTokenExpired
	}
	log.Debug("Refreshing access token")
	request := initiateAuthRequest{
		AuthFlow: "REFRESH_TOKEN_AUTH",
		ClientID: cognitoClientID,
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": m.token.RefreshToken,
		},
	}

	status, body, err := m.initiateAuth(ctx, &request)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		// Refresh responses don't always include a new refresh token.
		token, err := parseAuthResult(body, m.token.RefreshToken)
		if err != nil {
			return nil, &protocol.AuthenticationError{Err: err}
		}
		m.setToken(token)
		log.Info("Successfully refreshed token")
		return token, nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		log.Warning("Refresh token expired, performing new authentication")
		return m.login(ctx)
	default:
		return nil, &protocol.AuthenticationError{Err: &protocol.HTTPError{Code: status, Message: string(body)}}
	}
}

func (m *Manager) initiateAuth(ctx context.Context, payload *initiateAuthRequest) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	url := m.AuthURL
	if url == "" {
		url = DefaultAuthURL
	}
	request, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
	}

	request.Header.Set("Content-Type", "application/x-amz-json-1.1")
	request.Header.Set("X-Amz-Target", "AWSCognitoIdentityProviderService.InitiateAuth")
	request.Header.Set("X-Amz-User-Agent", "aws-amplify/5.0.4 js")
	request.Header.Set("Referer", "https://accounts.dronemobile.com/")
	request.Header.Set("Accept", "*/*")
	if m.UserAgent != "" {
		request.Header.Set("User-Agent", m.UserAgent)
	}

	response, err := m.client.Do(request)
	if err != nil {
		return 0, nil, &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
	}
	defer response.Body.Close()

	reader := io.LimitedReader{R: response.Body, N: maxAuthResponseLength}
	body, err = io.ReadAll(&reader)
	if err != nil {
		return 0, nil, &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
	}
	log.Debug("Auth server returned %d: %s", response.StatusCode, http.StatusText(response.StatusCode))
	return response.StatusCode, body, nil
}

func parseAuthResult(body []byte, previousRefreshToken string) (*Token, error) {
	var response initiateAuthResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("unable to parse authentication response: %w", err)
	}
	result := response.AuthenticationResult
	if result.IDToken == "" {
		return nil, errors.New("authentication response missing token")
	}
	if result.RefreshToken == "" {
		result.RefreshToken = previousRefreshToken
	}
	return &Token{
		AccessToken:  result.AccessToken,
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - expiryMargin),
	}, nil
}

func (m *Manager) setToken(token *Token) {
	m.token = token
	if err := m.saveToken(token); err != nil {
		log.Warning("Could not save token: %s", err)
	}
}

func (m *Manager) saveToken(token *Token) error {
	unlock, err := m.lockTokenFile()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.TokenFile(), data, 0600); err != nil {
		return err
	}
	// WriteFile doesn't change permissions on files that already exist.
	if err := os.Chmod(m.TokenFile(), 0600); err != nil {
		log.Warning("Could not set permissions on %s: %s", m.TokenFile(), err)
	}
	log.Debug("Token saved to %s", m.TokenFile())
	return nil
}

func (m *Manager) loadToken() (*Token, error) {
	data, err := os.ReadFile(m.TokenFile())
	if err == nil {
		var token Token
		if err := json.Unmarshal(data, &token); err != nil {
			return nil, fmt.Errorf("could not parse token file: %w", err)
		}
		return &token, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return m.migrateLegacyToken()
}

// legacyToken is the raw Cognito result written by older clients to ./drone_mobile_token.txt.
// The oldest files recorded the expiry under expiry_date instead of expiry_time.
type legacyToken struct {
	AuthenticationResult authenticationResult `json:"AuthenticationResult"`
	ExpiryTime           float64              `json:"expiry_time"`
	ExpiryDate           float64              `json:"expiry_date"`
}

func (m *Manager) migrateLegacyToken() (*Token, error) {
	data, err := os.ReadFile(legacyTokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	log.Info("Migrating token from legacy location")
	var legacy legacyToken
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("could not parse legacy token file: %w", err)
	}
	tokenType := legacy.AuthenticationResult.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	expiresAt := time.Now()
	expiry := legacy.ExpiryTime
	if expiry == 0 {
		expiry = legacy.ExpiryDate
	}
	if expiry > 0 {
		expiresAt = time.Unix(int64(expiry), 0)
	}
	token := &Token{
		AccessToken:  legacy.AuthenticationResult.AccessToken,
		IDToken:      legacy.AuthenticationResult.IDToken,
		RefreshToken: legacy.AuthenticationResult.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    expiresAt,
	}
	if err := m.saveToken(token); err != nil {
		return nil, err
	}
	if err := os.Remove(legacyTokenFile); err != nil {
		log.Warning("Could not remove legacy token file: %s", err)
	}
	return token, nil
}

// lockTokenFile takes an exclusive cross-process lock on the token file, returning a function that
// releases it. Lock files left behind by crashed processes are broken after lockTimeout.
func (m *Manager) lockTokenFile() (func(), error) {
	lockFile := m.TokenFile() + ".lock"
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			f.Close()
			return func() { os.Remove(lockFile) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		if time.Now().After(deadline) {
			if info, statErr := os.Stat(lockFile); statErr == nil && time.Since(info.ModTime()) > lockTimeout {
				log.Warning("Breaking stale token lock %s", lockFile)
				os.Remove(lockFile)
				continue
			}
			return nil, fmt.Errorf("timed out waiting for token lock %s", lockFile)
		}
		time.Sleep(lockRetryInterval)
	}
}
