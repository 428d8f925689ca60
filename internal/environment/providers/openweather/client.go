// Package openweather reads current conditions from an OpenWeatherMap
// compatible "current weather" endpoint.
package openweather

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vitalproof/internal/environment/providers"
)

const providerID = "weather"

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ID() string { return providerID }

type currentResponse struct {
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *float64 `json:"humidity"`
		Pressure *float64 `json:"pressure"`
	} `json:"main"`
}

// Weather fetches metric-unit conditions for the coordinate.
func (c *Client) Weather(ctx context.Context, lat, lon float64) (providers.Weather, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("units", "metric")
	if c.apiKey != "" {
		q.Set("appid", c.apiKey)
	}

	var resp currentResponse
	if err := providers.GetJSON(ctx, c.http, providerID, c.baseURL+"/data/2.5/weather?"+q.Encode(), &resp); err != nil {
		return providers.Weather{}, err
	}
	if resp.Main == nil || resp.Main.Temp == nil || resp.Main.Humidity == nil || resp.Main.Pressure == nil {
		return providers.Weather{}, providers.NewProviderError(providers.ErrorBadData, providerID, "response missing main.temp, main.humidity or main.pressure", nil)
	}
	return providers.Weather{
		TemperatureC: *resp.Main.Temp,
		HumidityPct:  *resp.Main.Humidity,
		PressureHPa:  *resp.Main.Pressure,
	}, nil
}
