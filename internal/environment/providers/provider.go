// Package providers defines the upstream contracts the resolver depends on and
// the shared error taxonomy for their failures.
package providers

//go:generate mockgen -destination=../mocks/providers.go -package=mocks vitalproof/internal/environment/providers WeatherProvider,ElevationProvider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Weather is the subset of current conditions the engine uses.
type Weather struct {
	TemperatureC float64
	HumidityPct  float64
	PressureHPa  float64
}

// WeatherProvider returns current conditions at a coordinate.
type WeatherProvider interface {
	ID() string
	Weather(ctx context.Context, lat, lon float64) (Weather, error)
}

// ElevationProvider returns ground elevation in meters at a coordinate.
type ElevationProvider interface {
	ID() string
	Elevation(ctx context.Context, lat, lon float64) (float64, error)
}

// maxResponseBytes bounds upstream bodies.
const maxResponseBytes = 1 << 20

// GetJSON performs a GET and decodes a JSON body into out, normalizing every
// failure into a *ProviderError.
func GetJSON(ctx context.Context, client *http.Client, providerID, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewProviderError(ErrorInternal, providerID, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return FromTransport(providerID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return FromStatus(providerID, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return NewProviderError(ErrorBadData, providerID, fmt.Sprintf("decode %s response", providerID), err)
	}
	return nil
}
