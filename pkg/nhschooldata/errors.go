package nhschooldata

import (
	"errors"
	"fmt"
)

var (
	// ErrYearUnavailable is returned for end years outside MinYear-MaxYear.
	ErrYearUnavailable = errors.New("year not available")
	// ErrUnexpectedHeader is returned when the export's header row does
	// not match the expected layout.
	ErrUnexpectedHeader = errors.New("unexpected header")
	// ErrNoData is returned when an export holds no usable records.
	ErrNoData = errors.New("no enrollment records")
)

// HTTPError reports a non-2xx response from the data source.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected response from %s: %s", e.URL, e.Status)
}
