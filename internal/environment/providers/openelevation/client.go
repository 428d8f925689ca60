// Package openelevation reads ground elevation from an Open-Elevation
// compatible lookup endpoint.
package openelevation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vitalproof/internal/environment/providers"
)

const providerID = "elevation"

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ID() string { return providerID }

type lookupResponse struct {
	Results []struct {
		Elevation *float64 `json:"elevation"`
	} `json:"results"`
}

// Elevation returns meters above sea level.
func (c *Client) Elevation(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("locations", fmt.Sprintf("%v,%v", lat, lon))

	var resp lookupResponse
	if err := providers.GetJSON(ctx, c.http, providerID, c.baseURL+"/api/v1/lookup?"+q.Encode(), &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 || resp.Results[0].Elevation == nil {
		return 0, providers.NewProviderError(providers.ErrorBadData, providerID, "response has no elevation result", nil)
	}
	return *resp.Results[0].Elevation, nil
}
