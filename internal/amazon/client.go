// Package amazon is a thin Advertising API client. Every call obtains its
// bearer token from the credential service, which transparently refreshes
// near expiry.
package amazon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adsboard/adsboard/internal/config"
	credentialdomain "github.com/adsboard/adsboard/internal/credential/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Profile is one advertising account visible to the authorized user.
type Profile struct {
	ProfileID    int64  `json:"profileId"`
	CountryCode  string `json:"countryCode"`
	CurrencyCode string `json:"currencyCode"`
	Timezone     string `json:"timezone"`
	AccountInfo  struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Name  string `json:"name"`
		Valid bool   `json:"validPaymentMethod"`
	} `json:"accountInfo"`
}

// DSPAdvertiser is one advertiser under a DSP entity profile.
type DSPAdvertiser struct {
	AdvertiserID string `json:"advertiserId"`
	Name         string `json:"name"`
	Currency     string `json:"currency"`
	Country      string `json:"country"`
	Timezone     string `json:"timezone"`
}

type dspAdvertiserPage struct {
	TotalResults int             `json:"totalResults"`
	Response     []DSPAdvertiser `json:"response"`
}

// DSPSeat is one exchange seat allocated to a DSP advertiser.
type DSPSeat struct {
	ExchangeID   string `json:"exchangeId"`
	ExchangeName string `json:"exchangeName"`
	DealCreation string `json:"dealCreationId"`
	SpendTracker string `json:"spendTrackingId"`
}

// AMCInstance is one Amazon Marketing Cloud instance entitlement.
type AMCInstance struct {
	InstanceID   string `json:"instanceId"`
	InstanceName string `json:"instanceName"`
	InstanceType string `json:"instanceType"`
	Status       string `json:"status"`
}

type amcInstancePage struct {
	Instances []AMCInstance `json:"instances"`
}

// APIError is a non-2xx Advertising API response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("advertising api: status %d: %s", e.StatusCode, e.Body)
}

type Params struct {
	fx.In

	Cfg        config.Config
	Credential credentialdomain.Service
	Log        *zap.Logger
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	credential credentialdomain.Service
	log        *zap.Logger
}

func New(p Params) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    p.Cfg.Amazon.APIBaseURL,
		clientID:   p.Cfg.Amazon.ClientID,
		credential: p.Credential,
		log:        p.Log.Named("amazon.client"),
	}
}

// ListProfiles returns the advertising profiles for the connected account.
func (c *Client) ListProfiles(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := c.get(ctx, "/v2/profiles", "", &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// ListDSPAdvertisers returns the DSP advertisers reachable through the given
// entity profile.
func (c *Client) ListDSPAdvertisers(ctx context.Context, profileID string) ([]DSPAdvertiser, error) {
	var page dspAdvertiserPage
	if err := c.get(ctx, "/dsp/advertisers", profileID, &page); err != nil {
		return nil, err
	}
	return page.Response, nil
}

// ListDSPSeats returns the exchange seats for the given entity profile.
func (c *Client) ListDSPSeats(ctx context.Context, profileID string) ([]DSPSeat, error) {
	var seats []DSPSeat
	if err := c.get(ctx, "/dsp/seats", profileID, &seats); err != nil {
		return nil, err
	}
	return seats, nil
}

// ListAMCInstances returns the Amazon Marketing Cloud instances the
// connected account is entitled to.
func (c *Client) ListAMCInstances(ctx context.Context) ([]AMCInstance, error) {
	var page amcInstancePage
	if err := c.get(ctx, "/amc/instances", "", &page); err != nil {
		return nil, err
	}
	return page.Instances, nil
}

// get issues an authenticated GET and decodes the JSON response. profileID,
// when set, scopes the call to one advertising profile.
func (c *Client) get(ctx context.Context, path, profileID string, out any) error {
	token, err := c.credential.GetValidAccessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Amazon-Advertising-API-ClientId", c.clientID)
	req.Header.Set("Accept", "application/json")
	if profileID != "" {
		req.Header.Set("Amazon-Advertising-API-Scope", profileID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", credentialdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.log.Warn("advertising api call failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return json.Unmarshal(body, out)
}

var Module = fx.Module("amazon",
	fx.Provide(New),
)
