// Package species looks up and creates species on the backend, with a TTL
// cache in front of free-text search.
package species

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/antonholmquist/jason"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/sensorhub/annotator/internal/errors"
	"github.com/sensorhub/annotator/internal/httpclient"
	"github.com/sensorhub/annotator/internal/logger"
)

// ErrNameRequired is returned when creating a species without a scientific name.
var ErrNameRequired = errors.NewStd("species name is required")

const maxBodySize = 1 << 20

// Species is a candidate for an observation's species fields.
type Species struct {
	Name       string `json:"species_name"`
	CommonName string `json:"species_common_name"`
}

// Config configures the service.
type Config struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	UserAgent      string
	CacheTTL       time.Duration // zero disables caching
	MinQueryLength int
	RateLimit      float64 // searches per second; zero is unlimited
	Transport      http.RoundTripper
}

// Service is the species lookup.
type Service struct {
	http     *httpclient.Client
	baseURL  string
	cache    *cache.Cache
	cacheTTL time.Duration
	limiter  *rate.Limiter
	minLen   int
	log      logger.Logger
}

// New creates a species service.
func New(cfg Config, log logger.Logger) (*Service, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, errors.New(err).
			Component("species").
			Category(errors.CategoryConfiguration).
			Context("base_url", cfg.BaseURL).
			Build()
	}
	if log == nil {
		log = logger.Global().Module("species")
	}

	headers := map[string]string{}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	s := &Service{
		http: httpclient.New(&httpclient.Config{
			DefaultTimeout: cfg.Timeout,
			UserAgent:      cfg.UserAgent,
			Headers:        headers,
			Transport:      cfg.Transport,
		}),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cacheTTL: cfg.CacheTTL,
		limiter:  limiter,
		minLen:   cfg.MinQueryLength,
		log:      log,
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, cfg.CacheTTL*2)
	}
	return s, nil
}

// HTTP returns the underlying client, e.g. to install metrics hooks.
func (s *Service) HTTP() *httpclient.Client {
	return s.http
}

// Close releases idle connections.
func (s *Service) Close() {
	s.http.Close()
}

// Search returns candidates matching query. Queries shorter than the
// configured minimum return no candidates without calling the backend.
func (s *Service) Search(ctx context.Context, query string) ([]Species, error) {
	key := Fold(query)
	if utf8.RuneCountInString(key) < s.minLen || key == "" {
		return []Species{}, nil
	}

	if s.cache != nil {
		if cached, found := s.cache.Get(key); found {
			s.log.Debug("species cache hit", logger.String("query", key))
			return cloneList(cached.([]Species)), nil
		}
	}
	s.log.Debug("species cache miss", logger.String("query", key))

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, errors.New(err).
			Component("species").
			Category(errors.CategoryCancellation).
			Context("operation", "rate_limiter_wait").
			Build()
	}

	endpoint := s.baseURL + "/species/?search=" + url.QueryEscape(strings.TrimSpace(query))
	resp, err := s.http.Get(ctx, endpoint)
	if err != nil {
		return nil, s.lookupError(err, "search", endpoint)
	}

	obj, err := s.decode(resp, "search", endpoint)
	if err != nil {
		return nil, err
	}

	items, err := obj.GetObjectArray("data")
	if err != nil {
		// A search with no matches may omit data or send null
		items = nil
	}
	results := make([]Species, 0, len(items))
	for _, item := range items {
		if sp, ok := speciesFrom(item); ok {
			results = append(results, sp)
		}
	}

	if s.cache != nil {
		s.cache.Set(key, cloneList(results), cache.DefaultExpiration)
	}
	return results, nil
}

// Create registers a species that search did not find.
func (s *Service) Create(ctx context.Context, sp Species) (Species, error) {
	sp.Name = strings.TrimSpace(sp.Name)
	sp.CommonName = strings.TrimSpace(sp.CommonName)
	if sp.Name == "" {
		return Species{}, errors.New(ErrNameRequired).
			Component("species").
			Category(errors.CategoryValidation).
			Build()
	}

	endpoint := s.baseURL + "/species/"
	resp, err := s.http.Post(ctx, endpoint, "", sp)
	if err != nil {
		return Species{}, s.lookupError(err, "create", endpoint)
	}

	obj, err := s.decode(resp, "create", endpoint)
	if err != nil {
		return Species{}, err
	}

	created := sp
	if data, err := obj.GetObject("data"); err == nil {
		if parsed, ok := speciesFrom(data); ok {
			created = parsed
		}
	}

	// Cached searches may now be missing the new species
	if s.cache != nil {
		s.cache.Flush()
	}
	s.log.Info("species created", logger.String("species_name", created.Name))
	return created, nil
}

// Resolve returns the species whose scientific name matches name, creating it when absent.
func (s *Service) Resolve(ctx context.Context, name, commonName string) (Species, error) {
	candidates, err := s.Search(ctx, name)
	if err != nil {
		return Species{}, err
	}
	want := Fold(name)
	for _, c := range candidates {
		if Fold(c.Name) == want {
			return c, nil
		}
	}
	return s.Create(ctx, Species{Name: name, CommonName: commonName})
}

// decode reads the envelope; a not-ok envelope or error status becomes a lookup error.
func (s *Service) decode(resp *http.Response, operation, endpoint string) (*jason.Object, error) {
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, s.lookupError(err, operation, endpoint)
	}

	obj, parseErr := jason.NewObjectFromBytes(body)
	ok := false
	if parseErr == nil {
		ok, _ = obj.GetBoolean("ok")
	}
	if parseErr != nil || !ok || resp.StatusCode >= http.StatusBadRequest {
		message := http.StatusText(resp.StatusCode)
		if parseErr == nil {
			if msg, err := obj.GetString("error"); err == nil && msg != "" {
				message = msg
			}
		}
		return nil, errors.New(fmt.Errorf("species %s failed: %s", operation, message)).
			Component("species").
			Category(errors.CategorySpeciesLookup).
			Context("status_code", resp.StatusCode).
			Context("endpoint", endpoint).
			Build()
	}
	return obj, nil
}

func (s *Service) lookupError(err error, operation, endpoint string) error {
	return errors.New(err).
		Component("species").
		Category(errors.CategoryNetwork).
		Context("operation", operation).
		Context("endpoint", endpoint).
		Build()
}

func speciesFrom(obj *jason.Object) (Species, bool) {
	name, err := obj.GetString("species_name")
	if err != nil || name == "" {
		return Species{}, false
	}
	common, _ := obj.GetString("species_common_name")
	return Species{Name: name, CommonName: common}, true
}

func cloneList(in []Species) []Species {
	out := make([]Species, len(in))
	copy(out, in)
	return out
}
