package nhschooldata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, DefaultURL, c.url.String())
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.Nil(t, c.Cache())
	assert.IsType(t, &RoundTripper{}, c.http.Transport)
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		Name   string
		Config Config
	}{
		{"Relative URL", Config{URL: "not a url"}},
		{"Negative timeout", Config{Timeout: -time.Second}},
		{"Negative max age", Config{CacheMaxAge: -time.Hour}},
	}
	for idx := range tests {
		test := tests[idx]
		t.Run(test.Name, func(t *testing.T) {
			_, err := NewClient(test.Config)
			assert.Error(t, err)
		})
	}
}

func TestNewClientWithCache(t *testing.T) {
	c, err := NewClient(Config{CachePath: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	defer c.Close()
	assert.NotNil(t, c.Cache())
}

func TestNewClientSharedRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewClient(Config{Registerer: reg})
	require.NoError(t, err)
	b, err := NewClient(Config{Registerer: reg})
	require.NoError(t, err)
	assert.Same(t, a.metrics.fetches, b.metrics.fetches)
}

func TestNewClientFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NHSCHOOLDATA_URL", "https://example.com/export")
	t.Setenv("NHSCHOOLDATA_CACHE_PATH", filepath.Join(dir, "c.db"))
	t.Setenv("NHSCHOOLDATA_CACHE_MAX_AGE", "2h")
	t.Setenv("NHSCHOOLDATA_TIMEOUT", "5s")

	cfg, err := configFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/export", cfg.URL)
	assert.Equal(t, filepath.Join(dir, "c.db"), cfg.CachePath)
	assert.Equal(t, 2*time.Hour, cfg.CacheMaxAge)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	c, err := NewClientFromEnv()
	require.NoError(t, err)
	defer c.Close()
	assert.NotNil(t, c.Cache())
}

func TestNewClientFromEnvCacheDisabled(t *testing.T) {
	t.Setenv("NHSCHOOLDATA_CACHE_PATH", filepath.Join(t.TempDir(), "c.db"))
	t.Setenv("NHSCHOOLDATA_CACHE_DISABLED", "true")

	cfg, err := configFromEnv()
	require.NoError(t, err)
	assert.Empty(t, cfg.CachePath)
	assert.Equal(t, DefaultURL, cfg.URL)
	assert.Equal(t, 720*time.Hour, cfg.CacheMaxAge)
}

func TestNewClientFromEnvInvalid(t *testing.T) {
	t.Setenv("NHSCHOOLDATA_TIMEOUT", "soon")
	_, err := NewClientFromEnv()
	assert.Error(t, err)
}

func TestYearURL(t *testing.T) {
	c, err := NewClient(Config{URL: "https://example.com/export?format=csv"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/export?format=csv&year=2019", c.yearURL(2019))
}
