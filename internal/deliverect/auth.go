package deliverect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"deliverect-tools/catalog-importer/internal/importerror"
	"deliverect-tools/catalog-importer/internal/logging"
)

// expirySkew makes a token count as expired slightly before the server says so.
const expirySkew = 30 * time.Second

type fetchTokenFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// tokenSource caches an access token and serialises refreshes so that
// concurrent callers hitting an expired token trigger one token request.
type tokenSource struct {
	mu      sync.RWMutex
	token   string
	expiry  time.Time
	fetch   fetchTokenFunc
	refresh singleflight.Group
	now     func() time.Time
}

func newTokenSource(fetch fetchTokenFunc) *tokenSource {
	return &tokenSource{fetch: fetch, now: time.Now}
}

// Token returns the cached token, fetching a new one when it is missing or expired.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token, valid := s.token, s.validLocked()
	s.mu.RUnlock()
	if valid {
		return token, nil
	}
	return s.Refresh(ctx, token)
}

// Refresh replaces stale with a new token. If another caller already replaced
// it, the newer token is returned without another request.
func (s *tokenSource) Refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := s.refresh.Do("token", func() (interface{}, error) {
		s.mu.RLock()
		current, valid := s.token, s.validLocked()
		s.mu.RUnlock()
		if valid && current != stale {
			return current, nil
		}

		token, expiresAt, err := s.fetch(ctx)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.token, s.expiry = token, expiresAt
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *tokenSource) validLocked() bool {
	return s.token != "" && s.now().Add(expirySkew).Before(s.expiry)
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Audience     string `json:"audience"`
	GrantType    string `json:"grant_type"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	ExpiresIn   int64  `json:"expires_in"`
}

// fetchToken exchanges the client credentials for an access token.
func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	const op = "fetch token"

	payload, err := json.Marshal(tokenRequest{
		ClientID:     c.opts.ClientID,
		ClientSecret: c.opts.ClientSecret,
		Audience:     c.opts.Audience,
		GrantType:    "token",
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.opts.AuthURL, bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, transportError(callCtx, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", time.Time{}, transportError(callCtx, op, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", time.Time{}, &importerror.APIError{
			Kind:       importerror.APIAuthFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", time.Time{}, &importerror.APIError{
			Kind:       importerror.APIRejected,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header, time.Now()),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		if err == nil {
			err = fmt.Errorf("no access_token in response")
		}
		return "", time.Time{}, &importerror.APIError{
			Kind:       importerror.APIAuthFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	var expiresAt time.Time
	switch {
	case tr.ExpiresAt > 0:
		expiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	default:
		expiresAt = time.Now().Add(time.Hour)
	}

	c.logger.Debug("Obtained access token",
		logging.F("expires_at", expiresAt.Format(time.RFC3339)))
	return tr.AccessToken, expiresAt, nil
}
