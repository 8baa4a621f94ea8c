package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/logger"
)

// StaticTokenAuthorizer sends a fixed bearer token. Canvas personal access
// tokens do not expire.
type StaticTokenAuthorizer struct {
	token string
}

func NewStaticTokenAuthorizer(token string) *StaticTokenAuthorizer {
	return &StaticTokenAuthorizer{token: token}
}

func (a *StaticTokenAuthorizer) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// RefreshingAuthorizer exchanges service-account credentials for a short-lived
// bearer token and refreshes it shortly before expiry.
type RefreshingAuthorizer struct {
	tokenURL string
	subject  string
	secret   string

	client    *http.Client
	token     string
	expiresAt time.Time
	mu        sync.RWMutex
	log       zerolog.Logger
}

func NewRefreshingAuthorizer(tokenURL, subject, secret string) *RefreshingAuthorizer {
	return &RefreshingAuthorizer{
		tokenURL: tokenURL,
		subject:  subject,
		secret:   secret,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger.Get(),
	}
}

func (a *RefreshingAuthorizer) Authorize(ctx context.Context, req *http.Request) error {
	token, err := a.getToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a *RefreshingAuthorizer) getToken(ctx context.Context) (string, error) {
	a.mu.RLock()
	if a.token != "" && time.Now().Before(a.expiresAt.Add(-30*time.Second)) {
		token := a.token
		a.mu.RUnlock()
		return token, nil
	}
	a.mu.RUnlock()

	return a.refreshToken(ctx)
}

func (a *RefreshingAuthorizer) refreshToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Double check after acquiring write lock
	if a.token != "" && time.Now().Before(a.expiresAt.Add(-30*time.Second)) {
		return a.token, nil
	}

	a.log.Debug().Msg("Refreshing authentication token")

	authData := map[string]string{
		"subject": a.subject,
		"secret":  a.secret,
	}
	jsonData, err := json.Marshal(authData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal auth data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth failed with status: %d", resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}

	a.token = tokenResp.Token
	a.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	a.log.Debug().Time("expires_at", a.expiresAt).Msg("Token refreshed successfully")
	return a.token, nil
}

// OAuth1Authorizer signs requests with Schoology's two-legged OAuth 1.0a
// PLAINTEXT scheme: no token, signature is "{consumer_secret}&".
type OAuth1Authorizer struct {
	key    string
	secret string
}

func NewOAuth1Authorizer(key, secret string) *OAuth1Authorizer {
	return &OAuth1Authorizer{key: key, secret: secret}
}

func (a *OAuth1Authorizer) Authorize(_ context.Context, req *http.Request) error {
	header := fmt.Sprintf(
		`OAuth realm="Schoology API", oauth_consumer_key=%q, oauth_token="", `+
			`oauth_nonce=%q, oauth_timestamp="%d", oauth_signature_method="PLAINTEXT", `+
			`oauth_version="1.0", oauth_signature="%s%%26"`,
		a.key, nonce(), time.Now().Unix(), a.secret)
	req.Header.Set("Authorization", header)
	return nil
}

func nonce() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 16)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
