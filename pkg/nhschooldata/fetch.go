package nhschooldata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/selesy/nhschooldata/pkg/cache"
)

// Enrollment is the fall enrollment of one school year.  Tidy is nil when
// the wide form alone was requested.
type Enrollment struct {
	EndYear int
	Records []EnrollmentRecord
	Tidy    []TidyRecord
}

type fetchOptions struct {
	wide    bool
	noCache bool
}

// FetchOption alters how FetchEnr loads a year.
type FetchOption func(*fetchOptions)

// Wide skips the conversion to long form.
func Wide() FetchOption {
	return func(o *fetchOptions) { o.wide = true }
}

// NoCache neither reads from nor writes to the cache.
func NoCache() FetchOption {
	return func(o *fetchOptions) { o.noCache = true }
}

// FetchEnr loads the fall enrollment export for the school year ending in
// endYear.  Fresh cached exports are used in place of a download unless
// NoCache is given.
func (c *Client) FetchEnr(ctx context.Context, endYear int, opts ...FetchOption) (*Enrollment, error) {
	if err := validateYear(endYear); err != nil {
		return nil, err
	}
	o := fetchOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	useCache := c.cache != nil && !o.noCache

	if useCache {
		recs, err := c.fromCache(ctx, endYear)
		if err == nil {
			return newEnrollment(endYear, recs, o), nil
		}
	}

	data, err := c.download(ctx, endYear)
	if err != nil {
		return nil, err
	}
	recs, err := ParseEnrollment(bytes.NewReader(data), endYear)
	if err != nil {
		return nil, fmt.Errorf("%s enrollment: %w", SchoolYear(endYear), err)
	}
	if useCache {
		if err := c.cache.Put(ctx, endYear, data); err != nil {
			log.Warn("Cache write failed: ", err)
		}
	}
	return newEnrollment(endYear, recs, o), nil
}

// fromCache returns the parsed cached export for endYear.  A cached
// export that no longer parses is evicted.
func (c *Client) fromCache(ctx context.Context, endYear int) ([]EnrollmentRecord, error) {
	start := time.Now()
	data, err := c.cache.Get(ctx, endYear)
	switch {
	case errors.Is(err, cache.ErrMiss):
		c.metrics.observeResult(sourceCache, resultMiss, start)
		log.Debug("Cache miss: ", endYear)
		return nil, err
	case err != nil:
		c.metrics.observe(sourceCache, start, err)
		log.Warn("Cache read failed: ", err)
		return nil, err
	}

	recs, err := ParseEnrollment(bytes.NewReader(data), endYear)
	c.metrics.observe(sourceCache, start, err)
	if err != nil {
		log.Warn("Evicting unreadable cache entry ", endYear, ": ", err)
		if _, cerr := c.cache.Clear(ctx, endYear); cerr != nil {
			log.Warn("Cache clear failed: ", cerr)
		}
		return nil, err
	}
	log.Debug("Cache hit: ", endYear)
	return recs, nil
}

func newEnrollment(endYear int, recs []EnrollmentRecord, o fetchOptions) *Enrollment {
	enr := &Enrollment{EndYear: endYear, Records: recs}
	if !o.wide {
		enr.Tidy = Tidy(recs)
	}
	return enr
}

func (c *Client) download(ctx context.Context, endYear int) (data []byte, err error) {
	start := time.Now()
	defer func() { c.metrics.observe(sourceNetwork, start, err) }()

	url := c.yearURL(endYear)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	log.Info("Downloading enrollment: ", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return io.ReadAll(resp.Body)
}

// FetchEnrMulti loads several school years concurrently and returns them
// in ascending year order.  Duplicate years are fetched once.  If any
// year fails the first failure (by year) is returned.
func (c *Client) FetchEnrMulti(ctx context.Context, endYears []int, opts ...FetchOption) ([]*Enrollment, error) {
	years := uniqueYears(endYears)
	for _, y := range years {
		if err := validateYear(y); err != nil {
			return nil, err
		}
	}

	type result struct {
		Enrollment *Enrollment
		EndYear    int
		Err        error
	}
	r := make(chan result, len(years))
	// Scatter
	for _, y := range years {
		go func(y int) {
			enr, err := c.FetchEnr(ctx, y, opts...)
			r <- result{enr, y, err}
		}(y)
	}

	// Gather
	byYear := make(map[int]result, len(years))
	for i := 0; i < cap(r); i++ {
		res := <-r
		byYear[res.EndYear] = res
	}
	out := make([]*Enrollment, 0, len(years))
	for _, y := range years {
		res := byYear[y]
		if res.Err != nil {
			return nil, res.Err
		}
		out = append(out, res.Enrollment)
	}
	return out, nil
}

func uniqueYears(endYears []int) []int {
	seen := make(map[int]bool, len(endYears))
	years := make([]int, 0, len(endYears))
	for _, y := range endYears {
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// DefaultClient returns the client used by the package level functions,
// building it from the environment on first use.  A failed build is
// retried on the next call.
func DefaultClient() (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient != nil {
		return defaultClient, nil
	}
	c, err := NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	defaultClient = c
	return c, nil
}

// FetchEnr loads the fall enrollment for endYear using DefaultClient.
func FetchEnr(ctx context.Context, endYear int, opts ...FetchOption) (*Enrollment, error) {
	c, err := DefaultClient()
	if err != nil {
		return nil, err
	}
	return c.FetchEnr(ctx, endYear, opts...)
}

// FetchEnrMulti loads several school years using DefaultClient.
func FetchEnrMulti(ctx context.Context, endYears []int, opts ...FetchOption) ([]*Enrollment, error) {
	c, err := DefaultClient()
	if err != nil {
		return nil, err
	}
	return c.FetchEnrMulti(ctx, endYears, opts...)
}
