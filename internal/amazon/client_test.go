package amazon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	credentialdomain "github.com/adsboard/adsboard/internal/credential/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tokenServiceStub struct {
	token string
	err   error
}

func (s *tokenServiceStub) GetValidAccessToken(context.Context) (string, error) {
	return s.token, s.err
}

func (s *tokenServiceStub) BeginAuthorization(context.Context, string) (*credentialdomain.AuthorizationRedirect, error) {
	return nil, nil
}

func (s *tokenServiceStub) CompleteAuthorization(context.Context, string, string) (*credentialdomain.Credential, error) {
	return nil, nil
}

func (s *tokenServiceStub) Refresh(context.Context) (*credentialdomain.RefreshResult, error) {
	return nil, nil
}

func (s *tokenServiceStub) Revoke(context.Context) (*credentialdomain.RevokeResult, error) {
	return nil, nil
}

func (s *tokenServiceStub) Status(context.Context) (*credentialdomain.Status, error) {
	return nil, nil
}

func newTestClient(base string, svc credentialdomain.Service) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    base,
		clientID:   "client-id",
		credential: svc,
		log:        zap.NewNop(),
	}
}

func TestListProfiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/profiles", r.URL.Path)
		assert.Equal(t, "Bearer the-access-token", r.Header.Get("Authorization"))
		assert.Equal(t, "client-id", r.Header.Get("Amazon-Advertising-API-ClientId"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"profileId": 1234, "countryCode": "US", "currencyCode": "USD",
			 "accountInfo": {"id": "A1B2C3", "type": "seller", "name": "Acme"}}
		]`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, &tokenServiceStub{token: "the-access-token"})

	profiles, err := client.ListProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, int64(1234), profiles[0].ProfileID)
	assert.Equal(t, "Acme", profiles[0].AccountInfo.Name)
}

func TestListDSPAdvertisersScopesToProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dsp/advertisers", r.URL.Path)
		assert.Equal(t, "4444", r.Header.Get("Amazon-Advertising-API-Scope"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"totalResults": 1,
			"response": [{"advertiserId": "77", "name": "Acme DSP", "currency": "USD"}]
		}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, &tokenServiceStub{token: "the-access-token"})

	advertisers, err := client.ListDSPAdvertisers(context.Background(), "4444")
	require.NoError(t, err)
	require.Len(t, advertisers, 1)
	assert.Equal(t, "77", advertisers[0].AdvertiserID)
	assert.Equal(t, "Acme DSP", advertisers[0].Name)
}

func TestListAMCInstances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/amc/instances", r.URL.Path)
		assert.Empty(t, r.Header.Get("Amazon-Advertising-API-Scope"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"instances": [{"instanceId": "amc-1", "instanceName": "main", "status": "ACTIVE"}]
		}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, &tokenServiceStub{token: "the-access-token"})

	instances, err := client.ListAMCInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "amc-1", instances[0].InstanceID)
}

func TestListProfilesPropagatesTokenErrors(t *testing.T) {
	client := newTestClient("http://unused", &tokenServiceStub{err: credentialdomain.ErrNotAuthenticated})

	_, err := client.ListProfiles(context.Background())
	assert.ErrorIs(t, err, credentialdomain.ErrNotAuthenticated)
}

func TestListProfilesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"UNAUTHORIZED"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, &tokenServiceStub{token: "the-access-token"})

	_, err := client.ListProfiles(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
