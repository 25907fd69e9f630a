// Package geo wraps the external population-density service used to size
// claim radii. Lookups are cached per coordinate cell; when the service is
// unreachable the caller falls back to rural, the larger and safer radius.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/pkg/siege"
)

// ErrLookupUnavailable reports that the density service could not answer.
var ErrLookupUnavailable = errors.New("density lookup unavailable")

// DensityCache caches classifications per coordinate cell.
type DensityCache interface {
	SetDensity(ctx context.Context, cell, density string) error
	GetDensity(ctx context.Context, cell string) (string, error)
}

// Classifier queries the external density service.
type Classifier struct {
	baseURL string
	client  *http.Client
	cache   DensityCache
}

// NewClassifier creates a Classifier against the given service base URL.
func NewClassifier(baseURL string, cache DensityCache) *Classifier {
	return &Classifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   cache,
	}
}

// cellKey buckets coordinates into ~1km cells so nearby lookups share a
// cache entry.
func cellKey(lat, lng float64) string {
	return fmt.Sprintf("%.2f:%.2f", lat, lng)
}

// ClassifyDensity returns the density class for a coordinate. On a cache
// miss it queries the external service; if that fails it returns Rural
// together with ErrLookupUnavailable so callers can log the degradation.
func (c *Classifier) ClassifyDensity(ctx context.Context, lat, lng float64) (siege.Density, error) {
	cell := cellKey(lat, lng)

	if c.cache != nil {
		cached, err := c.cache.GetDensity(ctx, cell)
		if err != nil {
			log.Warn().Err(err).Str("cell", cell).Msg("Density cache read failed")
		} else if cached != "" {
			return siege.Density(cached), nil
		}
	}

	density, err := c.fetch(ctx, lat, lng)
	if err != nil {
		log.Warn().Err(err).Float64("lat", lat).Float64("lng", lng).
			Msg("Density lookup failed, falling back to rural")
		return siege.Rural, fmt.Errorf("%w: %s", ErrLookupUnavailable, err)
	}

	if c.cache != nil {
		if err := c.cache.SetDensity(ctx, cell, string(density)); err != nil {
			log.Warn().Err(err).Str("cell", cell).Msg("Density cache write failed")
		}
	}
	return density, nil
}

func (c *Classifier) fetch(ctx context.Context, lat, lng float64) (siege.Density, error) {
	url := fmt.Sprintf("%s/v1/density?lat=%f&lng=%f", c.baseURL, lat, lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("density service status %d", resp.StatusCode)
	}

	var body struct {
		Density string `json:"density"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	switch d := siege.Density(body.Density); d {
	case siege.Urban, siege.Suburban, siege.Rural:
		return d, nil
	default:
		return "", fmt.Errorf("unknown density %q", body.Density)
	}
}
