// Package auth loads the OAuth client credentials and the cached token, and
// keeps the token file current when the access token is refreshed.
package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/hpungsan/gphotosync/internal/errors"
)

// Scope is the read-only Photos Library scope.
const Scope = "https://www.googleapis.com/auth/photoslibrary.readonly"

// LoadConfig reads an installed-app client secrets file.
func LoadConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, errors.NewAuth(fmt.Sprintf("read credentials %s", credentialsFile), err)
	}
	cfg, err := google.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, errors.NewAuth(fmt.Sprintf("parse credentials %s", credentialsFile), err)
	}
	return cfg, nil
}

// LoadToken reads the cached token. A missing file is an AUTH error telling
// the operator to run the consent flow.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewAuth(fmt.Sprintf("no cached token at %s; run \"gphotosync auth\"", path), nil)
		}
		return nil, errors.NewAuth(fmt.Sprintf("read token %s", path), err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, errors.NewAuth(fmt.Sprintf("parse token %s", path), err)
	}
	return &tok, nil
}

// SaveToken writes the token with owner-only permissions, replacing the old
// file atomically.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*")
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// TokenSource refreshes the access token when needed and writes every new
// token back to its file. It is safe for concurrent use.
type TokenSource struct {
	mu     sync.Mutex
	ctx    context.Context
	config *oauth2.Config
	path   string
	token  *oauth2.Token
	src    oauth2.TokenSource
	log    *logrus.Logger
}

// NewTokenSource returns a TokenSource starting from tok.
func NewTokenSource(ctx context.Context, config *oauth2.Config, tok *oauth2.Token, path string, logger *logrus.Logger) *TokenSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TokenSource{
		ctx:    ctx,
		config: config,
		path:   path,
		token:  tok,
		log:    logger,
	}
}

// Token returns a valid token, refreshing and persisting it if required.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.token.Valid() && ts.token.RefreshToken == "" {
		return nil, errors.NewAuth("token expired and there's no refresh token; run \"gphotosync auth\"", nil)
	}
	if ts.src == nil {
		ts.src = ts.config.TokenSource(ts.ctx, ts.token)
	}

	token, err := ts.src.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if stderrors.As(err, &rErr) && rErr.ErrorCode != "" {
			return nil, errors.NewAuth(fmt.Sprintf("refresh token: %s; run \"gphotosync auth\"", rErr.ErrorCode), err)
		}
		return nil, errors.NewAuth("refresh token", err)
	}

	changed := token.AccessToken != ts.token.AccessToken ||
		token.RefreshToken != ts.token.RefreshToken ||
		!token.Expiry.Equal(ts.token.Expiry)
	ts.token = token
	if changed {
		ts.log.WithField("expiry", token.Expiry).Debug("access token refreshed")
		if err := SaveToken(ts.path, token); err != nil {
			return nil, errors.NewAuth("couldn't store token", err)
		}
	}
	return token, nil
}

// Client returns an http.Client authorized by ts. Each call returns a new
// client sharing the same token source.
func (ts *TokenSource) Client() *http.Client {
	return oauth2.NewClient(ts.ctx, ts)
}

// NewTokenSourceFromFiles loads the credentials and cached token and returns a
// persisting token source.
func NewTokenSourceFromFiles(ctx context.Context, credentialsFile, tokenFile string, logger *logrus.Logger) (*TokenSource, error) {
	cfg, err := LoadConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return NewTokenSource(ctx, cfg, tok, tokenFile, logger), nil
}
