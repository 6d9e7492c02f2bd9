package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
)

// Refresher exchanges the current credential plus app secrets for a renewed
// long-lived credential. It performs a single exchange call; retry policy
// belongs to the caller.
type Refresher interface {
	Refresh(ctx context.Context, candidate, appID, appSecret string) (Credential, error)
}

// GraphRefresher drives the fb_exchange_token OAuth exchange.
type GraphRefresher struct {
	baseURL string
	version string
	client  HTTPClient
	clock   clockwork.Clock
	timeout time.Duration
}

func NewGraphRefresher(client HTTPClient, baseURL, version string, clock clockwork.Clock) *GraphRefresher {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	if version == "" {
		version = DefaultGraphVersion
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GraphRefresher{
		baseURL: baseURL,
		version: version,
		client:  client,
		clock:   clock,
		timeout: defaultRequestTimeout,
	}
}

func (r *GraphRefresher) Refresh(ctx context.Context, candidate, appID, appSecret string) (Credential, error) {
	// Checked before any I/O so the caller can fall back without a round trip.
	if appID == "" || appSecret == "" {
		return Credential{}, &RefreshError{Reason: RefreshMissingCredentials}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", appID)
	params.Set("client_secret", appSecret)
	params.Set("fb_exchange_token", candidate)

	u := fmt.Sprintf("%s/%s/oauth/access_token?%s", r.baseURL, r.version, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Credential{}, &RefreshError{Reason: RefreshExchangeFailed, Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Credential{}, &RefreshError{Reason: RefreshExchangeFailed, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, &RefreshError{Reason: RefreshExchangeFailed, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr graphError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Code != 0 {
			return Credential{}, &RefreshError{
				Reason: RefreshExchangeFailed,
				Err:    fmt.Errorf("platform error %d: %s", apiErr.Error.Code, apiErr.Error.Message),
			}
		}
		return Credential{}, &RefreshError{
			Reason: RefreshExchangeFailed,
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body),
		}
	}

	var exchange struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &exchange); err != nil {
		return Credential{}, &RefreshError{Reason: RefreshExchangeFailed, Err: fmt.Errorf("malformed exchange response: %w", err)}
	}
	if exchange.AccessToken == "" {
		return Credential{}, &RefreshError{Reason: RefreshExchangeFailed, Err: fmt.Errorf("exchange response carried no access token")}
	}

	cred := Credential{Value: exchange.AccessToken}
	if exchange.ExpiresIn > 0 {
		ts := r.clock.Now().Add(time.Duration(exchange.ExpiresIn) * time.Second)
		cred.ExpiresAt = &ts
	}
	return cred, nil
}
