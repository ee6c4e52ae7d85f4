package nhschooldata

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exportServer struct {
	*httptest.Server
	hits int32
}

func newExportServer(t *testing.T, data []byte) *exportServer {
	t.Helper()
	s := &exportServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.hits, 1)
		year, err := strconv.Atoi(r.URL.Query().Get("year"))
		if err != nil || year == 2016 {
			http.Error(w, "no such report", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write(append([]byte("\xEF\xBB\xBF"), data...))
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestClient(t *testing.T, url string, cached bool) *Client {
	t.Helper()
	cfg := Config{URL: url}
	if cached {
		cfg.CachePath = filepath.Join(t.TempDir(), "cache.db")
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFetchEnr(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, false)

	enr, err := c.FetchEnr(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, enr.EndYear)
	assert.Len(t, enr.Records, 4)
	assert.Len(t, enr.Tidy, 4*(len(GradeLevels)+1))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.fetches.WithLabelValues(sourceNetwork, resultOK)))
}

func TestFetchEnrWide(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, false)

	enr, err := c.FetchEnr(context.Background(), 2024, Wide())
	require.NoError(t, err)
	assert.Len(t, enr.Records, 4)
	assert.Nil(t, enr.Tidy)
}

func TestFetchEnrUnavailableYear(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, false)

	_, err := c.FetchEnr(context.Background(), MinYear-1)
	assert.ErrorIs(t, err, ErrYearUnavailable)
	assert.EqualValues(t, 0, atomic.LoadInt32(&srv.hits))
}

func TestFetchEnrHTTPError(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, false)

	_, err := c.FetchEnr(context.Background(), 2016)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, httpErr.URL, "year=2016")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.fetches.WithLabelValues(sourceNetwork, resultError)))
}

func TestFetchEnrBadExportNotCached(t *testing.T) {
	srv := newExportServer(t, []byte("not,an,export\n"))
	c := newTestClient(t, srv.URL, true)

	_, err := c.FetchEnr(context.Background(), 2024)
	assert.ErrorIs(t, err, ErrUnexpectedHeader)

	entries, err := c.Cache().Status(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchEnrCache(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, true)
	ctx := context.Background()

	first, err := c.FetchEnr(ctx, 2024)
	require.NoError(t, err)
	second, err := c.FetchEnr(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, first.Records, second.Records)
	assert.EqualValues(t, 1, atomic.LoadInt32(&srv.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.fetches.WithLabelValues(sourceCache, resultOK)))

	_, err = c.FetchEnr(ctx, 2024, NoCache())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&srv.hits))
}

func TestFetchEnrCacheMissCounted(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, true)
	ctx := context.Background()

	_, err := c.FetchEnr(ctx, 2024)
	require.NoError(t, err)
	_, err = c.FetchEnr(ctx, 2024)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.fetches.WithLabelValues(sourceCache, resultMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.fetches.WithLabelValues(sourceCache, resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.fetches.WithLabelValues(sourceNetwork, resultOK)))
}

func TestFetchEnrEvictsUnreadableCacheEntry(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, true)
	ctx := context.Background()
	require.NoError(t, c.Cache().Put(ctx, 2024, []byte("stale,layout\n")))

	enr, err := c.FetchEnr(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, enr.Records, 4)
	assert.EqualValues(t, 1, atomic.LoadInt32(&srv.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.fetches.WithLabelValues(sourceCache, resultError)))

	data, err := c.Cache().Get(ctx, 2024)
	require.NoError(t, err)
	_, err = ParseEnrollment(bytes.NewReader(data), 2024)
	assert.NoError(t, err)

	_, err = c.FetchEnr(ctx, 2024)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&srv.hits))
}

func TestFetchEnrUnusableCachePath(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	file := filepath.Join(t.TempDir(), "regular-file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	c, err := NewClient(Config{URL: srv.URL, CachePath: filepath.Join(file, "sub", "cache.db")})
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.Cache())

	enr, err := c.FetchEnr(context.Background(), 2024)
	require.NoError(t, err)
	assert.Len(t, enr.Records, 4)
}

func TestFetchEnrReusesConnections(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, false)
	ctx := context.Background()

	_, err := c.FetchEnr(ctx, 2024)
	require.NoError(t, err)
	before := runtime.NumGoroutine()
	for i := 0; i < 10; i++ {
		_, err := c.FetchEnr(ctx, 2024)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+4)
}

func TestFetchEnrCanceled(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchEnr(ctx, 2024)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchEnrMulti(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, false)

	enrs, err := c.FetchEnrMulti(context.Background(), []int{2024, 2018, 2020, 2018})
	require.NoError(t, err)
	require.Len(t, enrs, 3)
	assert.Equal(t, 2018, enrs[0].EndYear)
	assert.Equal(t, 2020, enrs[1].EndYear)
	assert.Equal(t, 2024, enrs[2].EndYear)
	assert.Equal(t, 2018, enrs[0].Records[0].EndYear)
	assert.EqualValues(t, 3, atomic.LoadInt32(&srv.hits))
}

func TestFetchEnrMultiFailure(t *testing.T) {
	srv := newExportServer(t, readFixture(t))
	c := newTestClient(t, srv.URL, false)

	_, err := c.FetchEnrMulti(context.Background(), []int{2015, 2016, 2017})
	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)

	_, err = c.FetchEnrMulti(context.Background(), []int{2015, 1990})
	assert.ErrorIs(t, err, ErrYearUnavailable)
}

func TestUniqueYears(t *testing.T) {
	assert.Equal(t, []int{2015, 2019, 2020}, uniqueYears([]int{2020, 2015, 2020, 2019}))
	assert.Empty(t, uniqueYears(nil))
}
