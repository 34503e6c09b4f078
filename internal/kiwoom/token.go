package kiwoom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// expiryBuffer is subtracted from the broker-reported expiry: a token is
// treated as invalid once now >= expires_dt - expiryBuffer.
const expiryBuffer = time.Hour

const expiresLayout = "20060102150405"

// kst is the broker's wall-clock zone for expires_dt.
var kst = loadKST()

func loadKST() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// cachedToken is the on-disk token cache shape.
type cachedToken struct {
	Token     string `json:"token"`
	ExpiresDt string `json:"expires_dt"`
}

// TokenKeeper acquires and caches brokerage OAuth tokens, refreshing them
// before expiry. Refreshes are serialized: the mutex is held across the
// token request so only one refresh is in flight.
type TokenKeeper struct {
	baseURL    string
	appKey     string
	secretKey  string
	tokenFile  string
	httpClient *http.Client
	logger     arbor.ILogger

	mu     sync.Mutex
	cached *cachedToken
}

// TokenKeeperOption configures the TokenKeeper.
type TokenKeeperOption func(*TokenKeeper)

// WithTokenHTTPClient sets a custom HTTP client.
func WithTokenHTTPClient(httpClient *http.Client) TokenKeeperOption {
	return func(k *TokenKeeper) {
		k.httpClient = httpClient
	}
}

// WithTokenLogger sets a logger.
func WithTokenLogger(logger arbor.ILogger) TokenKeeperOption {
	return func(k *TokenKeeper) {
		k.logger = logger
	}
}

// NewTokenKeeper creates a token keeper backed by the given cache file.
func NewTokenKeeper(baseURL, appKey, secretKey, tokenFile string, opts ...TokenKeeperOption) *TokenKeeper {
	k := &TokenKeeper{
		baseURL:   baseURL,
		appKey:    appKey,
		secretKey: secretKey,
		tokenFile: tokenFile,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// GetAccessToken returns a valid access token, refreshing on demand.
func (k *TokenKeeper) GetAccessToken(ctx context.Context, forceRefresh bool) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !forceRefresh {
		if k.cached == nil {
			k.cached = k.readCacheFile()
		}
		if k.cached != nil && tokenValid(k.cached, time.Now()) {
			return k.cached.Token, nil
		}
	}

	tok, err := k.requestToken(ctx)
	if err != nil {
		return "", err
	}

	k.cached = tok
	k.writeCacheFile(tok)
	return tok.Token, nil
}

// Revoke best-effort revokes the current token and deletes the cache file.
func (k *TokenKeeper) Revoke(ctx context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cached != nil && k.cached.Token != "" {
		body, _ := json.Marshal(map[string]string{
			"appkey":    k.appKey,
			"secretkey": k.secretKey,
			"token":     k.cached.Token,
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/oauth2/revoke", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json;charset=UTF-8")
			if resp, err := k.httpClient.Do(req); err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			} else if k.logger != nil {
				k.logger.Warn().Err(err).Msg("Token revocation request failed")
			}
		}
	}

	k.cached = nil
	if err := os.Remove(k.tokenFile); err != nil && !os.IsNotExist(err) {
		if k.logger != nil {
			k.logger.Warn().Err(err).Str("file", k.tokenFile).Msg("Failed to delete token cache file")
		}
	}
}

// tokenValid reports whether the cached token is still usable at now.
func tokenValid(tok *cachedToken, now time.Time) bool {
	if tok.Token == "" || tok.ExpiresDt == "" {
		return false
	}
	expires, err := time.ParseInLocation(expiresLayout, tok.ExpiresDt, kst)
	if err != nil {
		return false
	}
	return now.Before(expires.Add(-expiryBuffer))
}

func (k *TokenKeeper) requestToken(ctx context.Context) (*cachedToken, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     k.appKey,
		"secretkey":  k.secretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/oauth2/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	if k.logger != nil {
		k.logger.Debug().Str("url", k.baseURL+"/oauth2/token").Msg("Requesting broker access token")
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &AuthError{Message: fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, string(respBody))}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &AuthError{Message: fmt.Sprintf("failed to decode token response: %v", err)}
	}
	if tr.Token == "" {
		return nil, &AuthError{Message: "token endpoint returned empty token"}
	}

	return &cachedToken{Token: tr.Token, ExpiresDt: tr.ExpiresDt}, nil
}

func (k *TokenKeeper) readCacheFile() *cachedToken {
	data, err := os.ReadFile(k.tokenFile)
	if err != nil {
		return nil
	}
	var tok cachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		if k.logger != nil {
			k.logger.Warn().Err(err).Str("file", k.tokenFile).Msg("Ignoring unreadable token cache")
		}
		return nil
	}
	return &tok
}

func (k *TokenKeeper) writeCacheFile(tok *cachedToken) {
	if err := os.MkdirAll(filepath.Dir(k.tokenFile), 0700); err != nil {
		if k.logger != nil {
			k.logger.Warn().Err(err).Msg("Failed to create token cache directory")
		}
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := os.WriteFile(k.tokenFile, data, 0600); err != nil && k.logger != nil {
		k.logger.Warn().Err(err).Str("file", k.tokenFile).Msg("Failed to write token cache")
	}
}
