// Package environment resolves a coordinate into an immutable environmental
// context (altitude, temperature, humidity, pressure) that later constraint
// derivations and proofs refer to by id or by hash.
package environment

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	dErrors "vitalproof/pkg/domain-errors"
	"vitalproof/pkg/platform/canonical"
)

// Context is a resolved environmental snapshot. Never mutated after creation.
type Context struct {
	ID             uuid.UUID `json:"id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AltitudeMeters float64   `json:"altitude_meters"`
	TemperatureC   float64   `json:"temperature_c"`
	HumidityPct    float64   `json:"humidity_pct"`
	PressureHPa    float64   `json:"pressure_hpa"`
	Timezone       string    `json:"timezone"`
	ResolvedAt     time.Time `json:"resolved_at"`
	Hash           string    `json:"hash"`
}

// Readings are the measured inputs of a context.
type Readings struct {
	AltitudeMeters float64
	TemperatureC   float64
	HumidityPct    float64
	PressureHPa    float64
}

// hashedFields is everything that identifies a context except its id.
type hashedFields struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AltitudeMeters float64 `json:"altitude_meters"`
	TemperatureC   float64 `json:"temperature_c"`
	HumidityPct    float64 `json:"humidity_pct"`
	PressureHPa    float64 `json:"pressure_hpa"`
	Timezone       string  `json:"timezone"`
	ResolvedAt     string  `json:"resolved_at"`
}

// NewContext builds a context and stamps its content hash. resolvedAt is
// normalized to UTC microseconds so the hash survives a database round trip.
func NewContext(id uuid.UUID, lat, lon float64, r Readings, resolvedAt time.Time) (*Context, error) {
	c := &Context{
		ID:             id,
		Latitude:       lat,
		Longitude:      lon,
		AltitudeMeters: r.AltitudeMeters,
		TemperatureC:   r.TemperatureC,
		HumidityPct:    r.HumidityPct,
		PressureHPa:    r.PressureHPa,
		Timezone:       EstimateTimezone(lon),
		ResolvedAt:     resolvedAt.UTC().Truncate(time.Microsecond),
	}
	hash, err := c.ComputeHash()
	if err != nil {
		return nil, err
	}
	c.Hash = hash
	return c, nil
}

// ComputeHash returns the canonical SHA-256 over every field except the id.
func (c *Context) ComputeHash() (string, error) {
	h, err := canonical.Hash(hashedFields{
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		AltitudeMeters: c.AltitudeMeters,
		TemperatureC:   c.TemperatureC,
		HumidityPct:    c.HumidityPct,
		PressureHPa:    c.PressureHPa,
		Timezone:       c.Timezone,
		ResolvedAt:     c.ResolvedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash environmental context")
	}
	return h, nil
}

// IsFreshAt reports whether the context may still be used at now.
func (c *Context) IsFreshAt(now time.Time, staleness time.Duration) bool {
	return now.Sub(c.ResolvedAt) <= staleness
}

// ExpiresAt is the end of the context's usable window.
func (c *Context) ExpiresAt(staleness time.Duration) time.Time {
	return c.ResolvedAt.Add(staleness)
}

// ValidateCoordinate rejects out-of-range or non-finite coordinates.
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return dErrors.New(dErrors.CodeInvalidCoordinate, fmt.Sprintf("latitude %v outside [-90, 90]", lat))
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return dErrors.New(dErrors.CodeInvalidCoordinate, fmt.Sprintf("longitude %v outside [-180, 180]", lon))
	}
	return nil
}

// EstimateTimezone derives a whole-hour UTC offset from longitude.
func EstimateTimezone(lon float64) string {
	offset := int(math.Round(lon / 15))
	switch {
	case offset > 0:
		return fmt.Sprintf("UTC+%d", offset)
	case offset < 0:
		return fmt.Sprintf("UTC%d", offset)
	default:
		return "UTC"
	}
}

// CacheKey buckets a coordinate to two decimals and a time window.
func CacheKey(lat, lon float64, now time.Time, bucket time.Duration) string {
	round := func(v float64) float64 { return math.Round(v*100)/100 + 0 }
	return fmt.Sprintf("%.2f:%.2f:%d", round(lat), round(lon), now.UTC().Truncate(bucket).Unix())
}
