package nhschooldata

import (
	"context"
	"net/http"
	stdurl "net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/selesy/nhschooldata/pkg/cache"
)

const (
	// EnvconfigPrefix indicates that all environment variables used by
	// this library will start with NHSCHOOLDATA_.
	EnvconfigPrefix = "nhschooldata"
	// DefaultURL is the enrollment export endpoint used when an alternate
	// URL is not provided.  The school year is selected with a "year"
	// query parameter holding the end year.
	DefaultURL = "https://my.doe.nh.gov/iPlatform/Report/Export/FallEnrollment"
	// DefaultTimeout bounds a single export download.
	DefaultTimeout = 60 * time.Second
)

// Config contains the parameters used to build a Client.  A zero
// CachePath disables caching.
type Config struct {
	URL         string `validate:"required,url"`
	CachePath   string
	CacheMaxAge time.Duration `validate:"gte=0"`
	Timeout     time.Duration `validate:"gte=0"`
	// Registerer receives the client's Prometheus collectors.  A nil
	// Registerer keeps them on a private registry.
	Registerer prometheus.Registerer `validate:"-"`
}

// Client downloads, parses and caches enrollment exports.
type Client struct {
	url     *stdurl.URL
	http    *http.Client
	cache   *cache.Store
	metrics *metrics
}

// NewClient returns a new Client for the given configuration.  An empty
// URL is replaced by DefaultURL.  A cache that cannot be opened is logged
// and the client runs without one.
func NewClient(cfg Config) (*Client, error) {
	return newClient(cfg, &RoundTripper{Trans: nhTransport()})
}

type clientEnvConfig struct {
	URL           string        `default:"https://my.doe.nh.gov/iPlatform/Report/Export/FallEnrollment"`
	CachePath     string        `split_words:"true"`
	CacheDisabled bool          `split_words:"true"`
	CacheMaxAge   time.Duration `split_words:"true" default:"720h"`
	Timeout       time.Duration `default:"60s"`
}

// NewClientFromEnv returns a new Client from environment variables as
// follows:
//
// - NHSCHOOLDATA_URL            (Optional - see default in constants)
// - NHSCHOOLDATA_CACHE_PATH     (Optional - defaults to the user cache directory)
// - NHSCHOOLDATA_CACHE_DISABLED (Optional - "true" turns caching off)
// - NHSCHOOLDATA_CACHE_MAX_AGE  (Optional - defaults to 720h)
// - NHSCHOOLDATA_TIMEOUT        (Optional - defaults to 60s)
func NewClientFromEnv() (*Client, error) {
	cfg, err := configFromEnv()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg)
}

func configFromEnv() (Config, error) {
	env := clientEnvConfig{}
	if err := envconfig.Process(EnvconfigPrefix, &env); err != nil {
		return Config{}, err
	}
	cfg := Config{
		URL:         env.URL,
		CachePath:   env.CachePath,
		CacheMaxAge: env.CacheMaxAge,
		Timeout:     env.Timeout,
	}
	switch {
	case env.CacheDisabled:
		cfg.CachePath = ""
	case cfg.CachePath == "":
		cfg.CachePath = defaultCachePath()
	}
	return cfg, nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		log.Warn("No user cache directory, caching disabled: ", err)
		return ""
	}
	return filepath.Join(dir, EnvconfigPrefix, "cache.db")
}

func newClient(cfg Config, trans http.RoundTripper) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, err
	}
	u, err := stdurl.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}

	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}

	c := &Client{
		url: u,
		http: &http.Client{
			Transport: trans,
			Timeout:   cfg.Timeout,
		},
		metrics: m,
	}
	if cfg.CachePath != "" {
		c.cache, err = cache.Open(context.Background(), cache.Config{
			Path:   cfg.CachePath,
			MaxAge: cfg.CacheMaxAge,
		})
		if err != nil {
			log.Warn("Cache unavailable, caching disabled: ", err)
			c.cache = nil
		}
	}
	log.Debug("Client config: ", cfg)
	return c, nil
}

// Cache returns the client's payload cache, or nil when caching is
// disabled.
func (c *Client) Cache() *cache.Store {
	return c.cache
}

// Close releases the client's idle connections and cache.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

func (c *Client) yearURL(endYear int) string {
	u := *c.url
	q := u.Query()
	q.Set("year", strconv.Itoa(endYear))
	u.RawQuery = q.Encode()
	return u.String()
}
