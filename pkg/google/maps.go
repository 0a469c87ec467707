package google

import (
	"SafeRoad/internal/entity"
	redisPkg "SafeRoad/pkg/redis"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const (
	defaultBaseURL  = "https://maps.googleapis.com/maps/api"
	defaultCacheTTL = 24 * time.Hour
	maxImageBytes   = 8 << 20

	UnknownStreet = "Unknown Street"
)

var (
	ErrAPIKeyMissing = errors.New("GOOGLE_API_KEY is required")
	ErrNoImagery     = errors.New("street view returned no image")
)

// ImageRequest describes one Street View still.
type ImageRequest struct {
	Point   entity.GeoPoint
	Heading int
	FOV     int
	Pitch   int
	Size    int
}

type ItfGoogle interface {
	HasPanorama(ctx context.Context, p entity.GeoPoint) (bool, error)
	FetchImage(ctx context.Context, req ImageRequest) ([]byte, error)
	ResolveStreetName(ctx context.Context, p entity.GeoPoint) (string, error)
}

type mapsClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	cache    redisPkg.IRedis
	cacheTTL time.Duration
	log      *logrus.Logger
}

type Option func(*mapsClient)

func WithBaseURL(u string) Option {
	return func(c *mapsClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *mapsClient) {
		c.http = h
	}
}

func WithCache(cache redisPkg.IRedis, ttl time.Duration) Option {
	return func(c *mapsClient) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

func New(log *logrus.Logger, opts ...Option) (ItfGoogle, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}

	ttl := defaultCacheTTL
	if v, err := time.ParseDuration(os.Getenv("STREETVIEW_CACHE_TTL")); err == nil && v > 0 {
		ttl = v
	}

	return NewWithKey(apiKey, log, append([]Option{func(c *mapsClient) { c.cacheTTL = ttl }}, opts...)...), nil
}

func NewWithKey(apiKey string, log *logrus.Logger, opts ...Option) ItfGoogle {
	c := &mapsClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 20 * time.Second},
		cache:    redisPkg.Noop{},
		cacheTTL: defaultCacheTTL,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type metadataResponse struct {
	Status string `json:"status"`
	PanoID string `json:"pano_id"`
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

func (c *mapsClient) HasPanorama(ctx context.Context, p entity.GeoPoint) (bool, error) {
	key := fmt.Sprintf("streetview:pano:%s", coordKey(p))
	if v, err := c.cache.GetLookup(ctx, key); err == nil {
		return v == "1", nil
	}

	q := url.Values{}
	q.Set("location", coordKey(p))
	q.Set("key", c.apiKey)

	body, err := c.get(ctx, "/streetview/metadata", q, 1<<16)
	if err != nil {
		return false, err
	}

	var meta metadataResponse
	if err := jsoniter.Unmarshal(body, &meta); err != nil {
		return false, fmt.Errorf("decode street view metadata: %w", err)
	}

	var has bool
	switch meta.Status {
	case "OK":
		has = meta.PanoID != ""
	case "ZERO_RESULTS", "NOT_FOUND":
		has = false
	default:
		return false, fmt.Errorf("street view metadata status %s", meta.Status)
	}

	cached := "0"
	if has {
		cached = "1"
	}
	if err := c.cache.SetLookup(ctx, key, cached, c.cacheTTL); err != nil {
		c.log.WithError(err).Debug("panorama lookup not cached")
	}

	return has, nil
}

func (c *mapsClient) FetchImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	q := url.Values{}
	q.Set("size", fmt.Sprintf("%dx%d", req.Size, req.Size))
	q.Set("location", coordKey(req.Point))
	q.Set("heading", strconv.Itoa(req.Heading))
	q.Set("fov", strconv.Itoa(req.FOV))
	q.Set("pitch", strconv.Itoa(req.Pitch))
	q.Set("key", c.apiKey)

	body, err := c.get(ctx, "/streetview", q, maxImageBytes)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrNoImagery
	}

	return body, nil
}

// ResolveStreetName returns the "route" component of the first geocoding
// result, or UnknownStreet when there is none.
func (c *mapsClient) ResolveStreetName(ctx context.Context, p entity.GeoPoint) (string, error) {
	key := fmt.Sprintf("streetview:street:%s", coordKey(p))
	if v, err := c.cache.GetLookup(ctx, key); err == nil && v != "" {
		return v, nil
	}

	q := url.Values{}
	q.Set("latlng", coordKey(p))
	q.Set("key", c.apiKey)

	body, err := c.get(ctx, "/geocode/json", q, 1<<20)
	if err != nil {
		return UnknownStreet, err
	}

	var geo geocodeResponse
	if err := jsoniter.Unmarshal(body, &geo); err != nil {
		return UnknownStreet, fmt.Errorf("decode geocode response: %w", err)
	}

	name := UnknownStreet
	if len(geo.Results) > 0 {
		for _, comp := range geo.Results[0].AddressComponents {
			if contains(comp.Types, "route") && comp.LongName != "" {
				name = comp.LongName
				break
			}
		}
	}

	if name != UnknownStreet {
		if err := c.cache.SetLookup(ctx, key, name, c.cacheTTL); err != nil {
			c.log.WithError(err).Debug("street name not cached")
		}
	}

	return name, nil
}

func (c *mapsClient) get(ctx context.Context, path string, q url.Values, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.WithError(err).Debug("closing maps response body")
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

func coordKey(p entity.GeoPoint) string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
