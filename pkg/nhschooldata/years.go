package nhschooldata

import "fmt"

const (
	// MinYear is the first school year (by end year) with a published
	// enrollment export.
	MinYear = 2014
	// MaxYear is the most recent school year (by end year) available.
	MaxYear = 2025
)

// GetAvailableYears returns every end year that can be passed to FetchEnr,
// in ascending order.
func GetAvailableYears() []int {
	years := make([]int, 0, MaxYear-MinYear+1)
	for y := MinYear; y <= MaxYear; y++ {
		years = append(years, y)
	}
	return years
}

// SchoolYear renders an end year as its school year label, for example
// 2024 becomes "2023-24".
func SchoolYear(endYear int) string {
	return fmt.Sprintf("%d-%02d", endYear-1, endYear%100)
}

func validateYear(endYear int) error {
	if endYear < MinYear || endYear > MaxYear {
		return fmt.Errorf("%w: %d (available %d-%d)", ErrYearUnavailable, endYear, MinYear, MaxYear)
	}
	return nil
}
