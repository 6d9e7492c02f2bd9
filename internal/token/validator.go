package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultGraphBaseURL is the Graph API host.
	DefaultGraphBaseURL = "https://graph.facebook.com"
	// DefaultGraphVersion is the Graph API version prefix.
	DefaultGraphVersion = "v24.0"

	// codeSessionExpired is the platform error code for an expired or
	// invalidated session token.
	codeSessionExpired = 190

	defaultRequestTimeout = 10 * time.Second
)

// HTTPClient is an interface for making HTTP requests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validation is the introspection result for a candidate credential.
type Validation struct {
	// ExpiresAt is nil when the platform reports no expiry.
	ExpiresAt *time.Time
	// Identity is the id and name the credential acts as.
	Identity string
}

// Validator queries an introspection endpoint for a candidate credential. A
// transient failure is returned as *ValidationError; an authoritative expiry
// as *ExpiredCredentialError.
type Validator interface {
	Validate(ctx context.Context, candidate string) (*Validation, error)
}

// graphError is the platform error envelope.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Subcode int    `json:"error_subcode"`
	} `json:"error"`
}

// GraphValidator introspects tokens against the Graph API: /me confirms the
// token works, /debug_token yields its expiry.
type GraphValidator struct {
	baseURL string
	version string
	client  HTTPClient
	timeout time.Duration
}

func NewGraphValidator(client HTTPClient, baseURL, version string) *GraphValidator {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	if version == "" {
		version = DefaultGraphVersion
	}
	return &GraphValidator{
		baseURL: baseURL,
		version: version,
		client:  client,
		timeout: defaultRequestTimeout,
	}
}

func (v *GraphValidator) Validate(ctx context.Context, candidate string) (*Validation, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("access_token", candidate)
	params.Set("fields", "id,name")

	body, apiErr, err := v.get(ctx, "/me", params)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	if apiErr != nil {
		if apiErr.Error.Code == codeSessionExpired {
			return nil, &ExpiredCredentialError{
				Code:    apiErr.Error.Code,
				Subcode: apiErr.Error.Subcode,
				Message: apiErr.Error.Message,
			}
		}
		return nil, &ValidationError{Err: fmt.Errorf("platform error %d: %s", apiErr.Error.Code, apiErr.Error.Message)}
	}

	var me struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("malformed /me response: %w", err)}
	}

	result := &Validation{Identity: me.ID}
	if me.Name != "" {
		result.Identity = fmt.Sprintf("%s (%s)", me.Name, me.ID)
	}

	// Expiry lookup is best-effort: a token that answers /me is usable even
	// when debug_token is unreachable.
	debugParams := url.Values{}
	debugParams.Set("input_token", candidate)
	debugParams.Set("access_token", candidate)

	if body, apiErr, err := v.get(ctx, "/debug_token", debugParams); err == nil && apiErr == nil {
		var debug struct {
			Data struct {
				ExpiresAt int64 `json:"expires_at"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &debug); err == nil && debug.Data.ExpiresAt > 0 {
			ts := time.Unix(debug.Data.ExpiresAt, 0)
			result.ExpiresAt = &ts
		}
	}

	return result, nil
}

// get performs a GET against the versioned Graph API path. A non-2xx answer
// with a decodable error envelope is returned as apiErr; everything else that
// goes wrong is err.
func (v *GraphValidator) get(ctx context.Context, path string, params url.Values) ([]byte, *graphError, error) {
	u := fmt.Sprintf("%s/%s%s?%s", v.baseURL, v.version, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr graphError
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Code == 0 {
			return nil, nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
		}
		return nil, &apiErr, nil
	}

	return body, nil, nil
}
