package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adsboard/adsboard/internal/config"
)

// Error codes Amazon's token endpoint returns when the grant itself is dead.
// These are non-retryable: only a fresh authorization-code flow helps.
var reauthorizationCodes = map[string]bool{
	"invalid_grant":       true,
	"unauthorized_client": true,
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

type providerErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// providerError classifies one failed token-endpoint exchange.
type providerError struct {
	status     int
	code       string
	message    string
	transient  bool
	retryAfter time.Duration
}

func (e *providerError) Error() string {
	if e.code != "" {
		return fmt.Sprintf("token endpoint: %s (status %d)", e.code, e.status)
	}
	return fmt.Sprintf("token endpoint: %s", e.message)
}

func (e *providerError) reauthorizationRequired() bool {
	return !e.transient && reauthorizationCodes[e.code]
}

// ProviderClient talks to the provider's OAuth token endpoint. One attempt
// per call; retry policy lives in the refresher.
type ProviderClient struct {
	httpClient *http.Client
	cfg        config.AmazonConfig
}

func NewProviderClient(cfg config.Config) *ProviderClient {
	return &ProviderClient{
		httpClient: &http.Client{Timeout: cfg.Refresh.RequestTimeout},
		cfg:        cfg.Amazon,
	}
}

// ExchangeCode swaps an authorization code for a token pair.
func (p *ProviderClient) ExchangeCode(ctx context.Context, code, redirectURI string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	return p.do(ctx, form)
}

// RefreshToken swaps a refresh token for a new token pair.
func (p *ProviderClient) RefreshToken(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	return p.do(ctx, form)
}

// AuthorizeURL builds the consent URL the operator is redirected to.
func (p *ProviderClient) AuthorizeURL(redirectURI, state string) (string, error) {
	parsed, err := url.Parse(p.cfg.AuthURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("response_type", "code")
	query.Set("client_id", p.cfg.ClientID)
	query.Set("redirect_uri", redirectURI)
	if len(p.cfg.Scopes) > 0 {
		query.Set("scope", strings.Join(p.cfg.Scopes, " "))
	}
	query.Set("state", state)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (p *ProviderClient) do(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient by definition.
		return nil, &providerError{message: err.Error(), transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &providerError{status: resp.StatusCode, message: err.Error(), transient: true}
	}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		var token tokenResponse
		if err := json.Unmarshal(body, &token); err != nil || token.AccessToken == "" {
			return nil, &providerError{status: resp.StatusCode, message: "malformed token response", transient: true}
		}
		return &token, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, &providerError{
			status:     resp.StatusCode,
			message:    http.StatusText(resp.StatusCode),
			transient:  true,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	default:
		var errBody providerErrorBody
		_ = json.Unmarshal(body, &errBody)
		return nil, &providerError{
			status:  resp.StatusCode,
			code:    errBody.Error,
			message: errBody.ErrorDescription,
		}
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
