package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"genquota/internal/models"
)

// Verifier checks a bearer credential against the auth provider and returns
// a stable user id. Implementations must be safe for concurrent use.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// ErrVerificationFailed is returned when the auth provider rejects a token.
// Callers treat this as "anonymous", never as a request failure.
var ErrVerificationFailed = errors.New("credential verification failed")

// HTTPVerifier validates tokens by calling the auth provider's user-info
// endpoint with the bearer credential. Any non-200 response or transport
// failure yields ErrVerificationFailed.
type HTTPVerifier struct {
	url    string
	client *http.Client
}

// NewHTTPVerifier creates a verifier for the configured auth provider.
func NewHTTPVerifier(cfg models.AuthConfig) *HTTPVerifier {
	return &HTTPVerifier{
		url: cfg.UserInfoURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Verify resolves a bearer token to a user id via the auth provider.
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return "", fmt.Errorf("build user-info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrVerificationFailed, resp.StatusCode)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrVerificationFailed, err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrVerificationFailed)
	}

	return body.ID, nil
}

// StaticVerifier maps tokens to user ids from a fixed table. Used in tests
// and local development.
type StaticVerifier map[string]string

// Verify looks the token up in the static table.
func (s StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", ErrVerificationFailed
}
