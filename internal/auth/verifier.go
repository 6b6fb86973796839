package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// GoogleVerifier validates Google OAuth2 id_tokens against the tokeninfo
// endpoint and checks the audience against the configured client ids (web,
// installed and device clients each carry their own).
type GoogleVerifier struct {
	endpoint  string
	clientIDs []string
	http      *http.Client
}

// DefaultTokenInfoEndpoint is Google's id_token introspection endpoint.
const DefaultTokenInfoEndpoint = "https://oauth2.googleapis.com/tokeninfo"

// NewGoogleVerifier creates a verifier for the given acceptable audiences.
// An empty endpoint selects the default.
func NewGoogleVerifier(endpoint string, clientIDs []string, timeout time.Duration) *GoogleVerifier {
	if endpoint == "" {
		endpoint = DefaultTokenInfoEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GoogleVerifier{
		endpoint:  endpoint,
		clientIDs: clientIDs,
		http:      &http.Client{Timeout: timeout},
	}
}

func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		v.endpoint+"?id_token="+url.QueryEscape(idToken), nil)
	if err != nil {
		return "", err
	}

	resp, err := v.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tokeninfo status %d", resp.StatusCode)
	}

	var info struct {
		Aud string `json:"aud"`
		Sub string `json:"sub"`
		Exp string `json:"exp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("tokeninfo decode: %w", err)
	}

	if !v.audienceAllowed(info.Aud) {
		return "", fmt.Errorf("could not verify audience")
	}
	if info.Sub == "" {
		return "", fmt.Errorf("tokeninfo missing subject")
	}
	return info.Sub, nil
}

func (v *GoogleVerifier) audienceAllowed(aud string) bool {
	for _, id := range v.clientIDs {
		if id != "" && strings.EqualFold(id, aud) {
			return true
		}
	}
	return false
}
